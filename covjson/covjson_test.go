package covjson_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/covjson"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/mapselect"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/readio"
	"github.com/grailbio/vgraph/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapped(t *testing.T, text string, reads ...string) (*covgraph.Graph, *coverage.Coverage) {
	t.Helper()
	p, err := prg.ParseBracketed(text)
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)
	g, err := covgraph.Build(p)
	require.NoError(t, err)
	sr, err := search.New(idx, g)
	require.NoError(t, err)
	cov := coverage.New(g)
	for _, read := range reads {
		states := sr.SearchReadBackwards(readio.Encode(read))
		require.NotEmpty(t, states, "read %q must map", read)
		sel := mapselect.Select(sr, states, mapselect.ReadRNG(1, []byte(read)))
		cov.Record(sr, sel, len(read))
	}
	return g, cov
}

func TestAlleleBaseCountsFlatSite(t *testing.T) {
	g, cov := mapped(t, "AA[CT,G]TT", "AACTTT", "AACTTT")
	counts := covjson.AlleleBaseCounts(cov, g)
	require.Len(t, counts, 1)
	assert.Equal(t, [][]uint32{{2, 2}, {0}}, counts[0])
}

func TestAlleleBaseCountsEmptyForNestedSite(t *testing.T) {
	g, cov := mapped(t, "A[AA[C,G]AA,T]A", "AAACAAA")
	counts := covjson.AlleleBaseCounts(cov, g)
	require.Len(t, counts, 2)
	outerIdx := prg.Symbol(5).Index()
	assert.Empty(t, counts[outerIdx], "nested haplogroup has no flat per-base layout")
	innerIdx := prg.Symbol(7).Index()
	assert.Equal(t, [][]uint32{{1}, {0}}, counts[innerIdx])
}

func TestWriteAllProducesParsableJSON(t *testing.T) {
	g, cov := mapped(t, "AA[CT,G]TT", "AACTTT")
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	sum := filepath.Join(dir, "sum.json")
	grouped := filepath.Join(dir, "grouped.json")
	require.NoError(t, covjson.WriteAll(context.Background(), cov, g, base, sum, grouped))

	var sumObj struct {
		AlleleSumCoverage [][]int64 `json:"allele_sum_coverage"`
	}
	raw, err := os.ReadFile(sum)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &sumObj))
	assert.Equal(t, [][]int64{{1, 0}}, sumObj.AlleleSumCoverage)

	var groupedObj struct {
		GroupedAlleleCounts struct {
			SiteCounts   []map[string]int64 `json:"site_counts"`
			AlleleGroups map[string][]int   `json:"allele_groups"`
		} `json:"grouped_allele_counts"`
	}
	raw, err = os.ReadFile(grouped)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &groupedObj))
	require.Len(t, groupedObj.GroupedAlleleCounts.SiteCounts, 1)
	assert.Equal(t, int64(1), groupedObj.GroupedAlleleCounts.SiteCounts[0]["0"])
	assert.Equal(t, []int{0}, groupedObj.GroupedAlleleCounts.AlleleGroups["0"])

	var baseObj struct {
		AlleleBaseCounts [][][]uint32 `json:"allele_base_counts"`
	}
	raw, err = os.ReadFile(base)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &baseObj))
	assert.Equal(t, [][][]uint32{{{1, 1}, {0}}}, baseObj.AlleleBaseCounts)
}
