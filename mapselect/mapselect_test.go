package mapselect_test

import (
	"testing"

	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/mapselect"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearcher(t *testing.T, text string, numbered bool) *search.Searcher {
	t.Helper()
	var p *prg.PRG
	var err error
	if numbered {
		p, err = prg.ParseNumbered(text)
	} else {
		p, err = prg.ParseBracketed(text)
	}
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)
	g, err := covgraph.Build(p)
	require.NoError(t, err)
	sr, err := search.New(idx, g)
	require.NoError(t, err)
	return sr
}

func encode(t *testing.T, read string) []prg.Symbol {
	t.Helper()
	out := make([]prg.Symbol, len(read))
	for i := 0; i < len(read); i++ {
		s, ok := prg.ByteToBase(read[i])
		require.True(t, ok)
		out[i] = s
	}
	return out
}

func TestSelectSingleClassAlwaysChosen(t *testing.T) {
	sr := newSearcher(t, "AATAA[C,G]AA", false)
	states := sr.SearchReadBackwards(encode(t, "AATAACAA"))
	require.NotEmpty(t, states)
	for seed := uint64(1); seed < 20; seed++ {
		rng := mapselect.ReadRNG(seed, []byte("AATAACAA"))
		sel := mapselect.Select(sr, states, rng)
		require.Len(t, sel.States, 1)
		assert.Equal(t, []search.Locus{{Site: 5, Allele: 0}}, sel.UniqueLoci)
	}
}

func TestSelectDeterministicPerSeed(t *testing.T) {
	sr := newSearcher(t, "TAG5TC6G6T6AG7T8C8CTA", true)
	states := sr.SearchReadBackwards(encode(t, "TAGT"))
	require.Len(t, states, 3)
	for seed := uint64(1); seed < 50; seed++ {
		a := mapselect.Select(sr, states, mapselect.ReadRNG(seed, []byte("TAGT")))
		b := mapselect.Select(sr, states, mapselect.ReadRNG(seed, []byte("TAGT")))
		assert.Equal(t, a.UniqueLoci, b.UniqueLoci, "seed %d", seed)
	}
}

// The multi-mapping read TAGT forms two equivalence classes: {site 5} with
// two member states, and {site 5, site 7} with one. Every draw must land
// on one of the two class outcomes, and over many seeds both must occur.
func TestSelectEquivalenceClassOutcomes(t *testing.T) {
	sr := newSearcher(t, "TAG5TC6G6T6AG7T8C8CTA", true)
	states := sr.SearchReadBackwards(encode(t, "TAGT"))
	require.Len(t, states, 3)

	classOnly5 := []search.Locus{{Site: 5, Allele: 0}, {Site: 5, Allele: 2}}
	classBoth := []search.Locus{{Site: 5, Allele: 2}, {Site: 7, Allele: 0}}

	var seen5, seenBoth int
	for seed := uint64(1); seed <= 200; seed++ {
		sel := mapselect.Select(sr, states, mapselect.ReadRNG(seed, []byte("TAGT")))
		require.NotEmpty(t, sel.States, "a variant class must always be drawn")
		switch {
		case assert.ObjectsAreEqual(classOnly5, sel.UniqueLoci):
			seen5++
			assert.Len(t, sel.States, 2)
		case assert.ObjectsAreEqual(classBoth, sel.UniqueLoci):
			seenBoth++
			assert.Len(t, sel.States, 1)
		default:
			t.Fatalf("seed %d: unexpected loci %v", seed, sel.UniqueLoci)
		}
	}
	assert.Greater(t, seen5, 0)
	assert.Greater(t, seenBoth, 0)
}

func TestSelectNonVariantMappingRecordsNothing(t *testing.T) {
	// Read AA maps once outside any bubble and once inside the site: two
	// options, one of which records nothing.
	sr := newSearcher(t, "AAT[AAC,G]T", false)
	states := sr.SearchReadBackwards(encode(t, "AA"))
	var sawEmpty, sawSite int
	for seed := uint64(1); seed <= 100; seed++ {
		sel := mapselect.Select(sr, states, mapselect.ReadRNG(seed, []byte("AA")))
		if len(sel.States) == 0 {
			sawEmpty++
			continue
		}
		sawSite++
		assert.Equal(t, []search.Locus{{Site: 5, Allele: 0}}, sel.UniqueLoci)
	}
	assert.Greater(t, sawEmpty, 0)
	assert.Greater(t, sawSite, 0)
}

func TestSelectEncapsulatedMultiInstanceNarrowsToOneRow(t *testing.T) {
	// AA occurs twice inside the same allele; selection keeps one SA row.
	sr := newSearcher(t, "T[AACAAG,C]T", false)
	states := sr.SearchReadBackwards(encode(t, "AA"))
	require.Len(t, states, 1)
	require.Equal(t, 2, states[0].Interval.Size())
	for seed := uint64(1); seed <= 20; seed++ {
		sel := mapselect.Select(sr, states, mapselect.ReadRNG(seed, []byte("AA")))
		require.Len(t, sel.States, 1)
		assert.Equal(t, 1, sel.States[0].Interval.Size())
		assert.Equal(t, []search.Locus{{Site: 5, Allele: 0}}, sel.UniqueLoci)
	}
}

func TestStateLociIncludeAncestorsOfNestedSites(t *testing.T) {
	sr := newSearcher(t, "AATAA[CCC[A,G],T]AA", false)
	states := sr.SearchReadBackwards(encode(t, "AATAACCCGAA"))
	require.Len(t, states, 1)
	sel := mapselect.Select(sr, states, mapselect.ReadRNG(7, []byte("AATAACCCGAA")))
	require.Len(t, sel.States, 1)
	assert.Equal(t, []search.Locus{{Site: 5, Allele: 0}, {Site: 7, Allele: 1}}, sel.UniqueLoci)
}
