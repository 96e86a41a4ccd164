package fmindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndRandomAccess(t *testing.T) {
	p, err := prg.ParseBracketed("AATAA[C,G]AA")
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)

	// Every suffix in SA order must be lexicographically non-decreasing
	// with respect to the text read from its start.
	for i := 1; i < idx.Len(); i++ {
		a, b := idx.SA(i-1), idx.SA(i)
		assert.LessOrEqual(t, compareSuffix(idx, a, b), 0)
	}
}

func compareSuffix(idx *fmindex.FMIndex, a, b int) int {
	for a < idx.Len() && b < idx.Len() {
		sa, sb := idx.Text(a), idx.Text(b)
		if sa != sb {
			if sa < sb {
				return -1
			}
			return 1
		}
		a++
		b++
	}
	return 0
}

func TestSiteAndSeparatorIntervals(t *testing.T) {
	p, err := prg.ParseBracketed("AATAA[C,G]AA[C,G]AA")
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)

	iv, err := idx.SiteInterval(prg.FirstMarker)
	require.NoError(t, err)
	assert.Equal(t, 2, iv.Size())

	sep, err := idx.AlleleSeparatorInterval(prg.FirstMarker)
	require.NoError(t, err)
	assert.Equal(t, 1, sep.Size())
}

func TestExtendMatchesBruteForce(t *testing.T) {
	p, err := prg.ParseBracketed("AATAACAACAA")
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)

	pattern := []prg.Symbol{prg.BaseA, prg.BaseA, prg.BaseC}
	iv := idx.FullInterval()
	for i := len(pattern) - 1; i >= 0; i-- {
		iv = idx.Extend(iv, pattern[i])
		require.False(t, iv.Empty())
	}
	for i := iv.Lo; i < iv.Hi; i++ {
		pos := idx.SA(i)
		for j, sym := range pattern {
			assert.Equal(t, sym, idx.Text(pos+j))
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := prg.ParseBracketed("AATAA[C,G]AA")
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "test.fmi")
	require.NoError(t, fmindex.Save(ctx, path, idx))

	loaded, err := fmindex.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	for i := 0; i < idx.Len(); i++ {
		assert.Equal(t, idx.SA(i), loaded.SA(i))
		assert.Equal(t, idx.BWTAt(i), loaded.BWTAt(i))
	}
}
