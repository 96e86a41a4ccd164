package quasimap_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/quasimap"
	"github.com/grailbio/vgraph/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFastq(t *testing.T, reads ...string) string {
	t.Helper()
	var b strings.Builder
	for i, read := range reads {
		b.WriteString("@r")
		b.WriteString(strings.Repeat("x", i)) // distinct IDs
		b.WriteString("\n")
		b.WriteString(read)
		b.WriteString("\n+\n")
		b.WriteString(strings.Repeat("I", len(read)))
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), "reads.fastq")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func setup(t *testing.T, text string) (*search.Searcher, *coverage.Coverage) {
	t.Helper()
	p, err := prg.ParseBracketed(text)
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)
	g, err := covgraph.Build(p)
	require.NoError(t, err)
	sr, err := search.New(idx, g)
	require.NoError(t, err)
	return sr, coverage.New(g)
}

func TestRunMapsAndCounts(t *testing.T) {
	sr, cov := setup(t, "AATAA[C,G]AA")
	path := writeFastq(t,
		"AATAACAA",
		"AATAACAA",
		"AATAAGAA",
		"AATAANAA", // skipped: N
		"AATTTTAA", // unmapped
	)
	stats, err := quasimap.Run(context.Background(), sr, cov,
		&quasimap.Params{Seed: 5, Threads: 2}, []string{path})
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.AllReads)
	assert.Equal(t, int64(1), stats.SkippedReads)
	assert.Equal(t, int64(3), stats.MappedReads, "forward orientation of each mappable read")
	assert.Equal(t, []int64{2, 1}, cov.AlleleSumRow(prg.Symbol(5)))
}

func TestRunSameSeedSameCoverage(t *testing.T) {
	path := writeFastq(t, "TAGT", "TAGT", "TAGT", "TAGT")
	p, err := prg.ParseNumbered("TAG5TC6G6T6AG7T8C8CTA")
	require.NoError(t, err)
	run := func(threads int) []int64 {
		idx, err := fmindex.Build(p)
		require.NoError(t, err)
		g, err := covgraph.Build(p)
		require.NoError(t, err)
		sr, err := search.New(idx, g)
		require.NoError(t, err)
		cov := coverage.New(g)
		_, err = quasimap.Run(context.Background(), sr, cov,
			&quasimap.Params{Seed: 42, Threads: threads}, []string{path})
		require.NoError(t, err)
		return append(cov.AlleleSumRow(prg.Symbol(5)), cov.AlleleSumRow(prg.Symbol(7))...)
	}
	assert.Equal(t, run(1), run(4), "coverage must not depend on worker interleaving")
}

func TestRunMaxReadLengthSkips(t *testing.T) {
	sr, cov := setup(t, "AATAA[C,G]AA")
	path := writeFastq(t, "AATAACAA")
	stats, err := quasimap.Run(context.Background(), sr, cov,
		&quasimap.Params{Seed: 5, MaxReadLength: 4}, []string{path})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SkippedReads)
	assert.Equal(t, []int64{0, 0}, cov.AlleleSumRow(prg.Symbol(5)))
}
