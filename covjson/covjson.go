// Package covjson serialises the three coverage structures to their JSON
// wire forms. The shapes are part of the external interface, so plain
// encoding/json with explicit intermediate types does the work.
package covjson

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/pkg/errors"
)

type alleleBaseCounts struct {
	AlleleBaseCounts [][][]uint32 `json:"allele_base_counts"`
}

type alleleSum struct {
	AlleleSumCoverage [][]int64 `json:"allele_sum_coverage"`
}

type groupedCounts struct {
	GroupedAlleleCounts struct {
		SiteCounts   []map[string]int64 `json:"site_counts"`
		AlleleGroups map[string][]int   `json:"allele_groups"`
	} `json:"grouped_allele_counts"`
}

// AlleleBaseCounts assembles the per-site, per-allele, per-base array. A
// site whose alleles contain nested bubbles has no flat per-base layout;
// its entry is empty.
func AlleleBaseCounts(cov *coverage.Coverage, g *covgraph.Graph) [][][]uint32 {
	out := make([][][]uint32, cov.NumSites())
	for i := range out {
		out[i] = [][]uint32{}
	}
	for _, site := range g.BubbleOrder {
		bubble := g.BubbleMap[site]
		numAlleles := len(g.Node(bubble.Start).Edges)
		rows := make([][]uint32, 0, numAlleles)
		flat := true
		for a := 0; a < numAlleles; a++ {
			row, ok := cov.PerBase(site, a)
			if !ok {
				flat = false
				break
			}
			rows = append(rows, row)
		}
		if flat {
			out[site.Index()] = rows
		}
	}
	return out
}

// AlleleSumMatrix assembles the 2-D allele-sum matrix in dense site
// order.
func AlleleSumMatrix(cov *coverage.Coverage, g *covgraph.Graph) [][]int64 {
	out := make([][]int64, cov.NumSites())
	for i := range out {
		out[i] = []int64{}
	}
	for _, site := range g.BubbleOrder {
		out[site.Index()] = cov.AlleleSumRow(site)
	}
	return out
}

// WriteAll writes the three coverage JSON files into paths given per
// structure.
func WriteAll(ctx context.Context, cov *coverage.Coverage, g *covgraph.Graph, basePath, sumPath, groupedPath string) error {
	if err := writeJSON(ctx, basePath, alleleBaseCounts{AlleleBaseCounts: AlleleBaseCounts(cov, g)}); err != nil {
		return err
	}
	if err := writeJSON(ctx, sumPath, alleleSum{AlleleSumCoverage: AlleleSumMatrix(cov, g)}); err != nil {
		return err
	}
	return writeJSON(ctx, groupedPath, grouped(cov, g))
}

// grouped assembles the grouped-allele-counts object: per-site counts
// keyed by a dense group ID, plus the side table mapping group IDs to
// allele sets.
func grouped(cov *coverage.Coverage, g *covgraph.Graph) groupedCounts {
	ids, groups := cov.GroupIDs()
	var out groupedCounts
	out.GroupedAlleleCounts.AlleleGroups = map[string][]int{}
	for id, alleles := range groups {
		out.GroupedAlleleCounts.AlleleGroups[strconv.Itoa(id)] = alleles
	}
	out.GroupedAlleleCounts.SiteCounts = make([]map[string]int64, cov.NumSites())
	for i := range out.GroupedAlleleCounts.SiteCounts {
		out.GroupedAlleleCounts.SiteCounts[i] = map[string]int64{}
	}
	for _, site := range g.BubbleOrder {
		counts := out.GroupedAlleleCounts.SiteCounts[site.Index()]
		for _, gc := range cov.SiteGroups(site) {
			counts[strconv.Itoa(ids[coverage.GroupKey(gc.Alleles)])] = gc.Count
		}
	}
	return out
}

func writeJSON(ctx context.Context, path string, v interface{}) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrap(err, "create "+path)
	}
	enc := json.NewEncoder(f.Writer(ctx))
	if err := enc.Encode(v); err != nil {
		_ = f.Close(ctx)
		return errors.Wrap(err, "encode "+path)
	}
	return f.Close(ctx)
}
