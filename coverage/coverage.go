// Package coverage holds the three per-site coverage structures a mapping
// run accumulates and the recorders that update them
// from selected mapping instances. All recorders are safe for concurrent
// use: allele-sum counters are atomic, grouped-allele counts take a
// per-site lock (the group map can grow), and per-base counters on the
// coverage graph use saturating compare-and-swap increments.
package coverage

import (
	"sort"
	"sync"

	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/prg"
)

// GroupCount is one grouped-allele-counts entry: the number of reads
// compatible with exactly this set of alleles of one site.
type GroupCount struct {
	Alleles []int
	Count   int64
}

type siteGroups struct {
	mu     sync.Mutex
	counts map[string]*GroupCount
}

// Coverage aggregates every coverage structure for one PRG.
type Coverage struct {
	graph *covgraph.Graph
	// alleleSum[siteIdx][allele], incremented once per selected mapping
	// that touches the allele.
	alleleSum [][]int64
	grouped   []*siteGroups
}

// New allocates empty coverage structures sized to the graph's bubbles.
// Per-base counters live on the graph nodes themselves and are assumed
// zeroed.
func New(g *covgraph.Graph) *Coverage {
	numSites := 0
	for _, site := range g.BubbleOrder {
		if idx := site.Index(); idx >= numSites {
			numSites = idx + 1
		}
	}
	c := &Coverage{
		graph:     g,
		alleleSum: make([][]int64, numSites),
		grouped:   make([]*siteGroups, numSites),
	}
	for _, site := range g.BubbleOrder {
		idx := site.Index()
		bubble := g.BubbleMap[site]
		c.alleleSum[idx] = make([]int64, len(g.Node(bubble.Start).Edges))
		c.grouped[idx] = &siteGroups{counts: map[string]*GroupCount{}}
	}
	return c
}

// NumSites returns the number of bubbles covered.
func (c *Coverage) NumSites() int { return len(c.alleleSum) }

// AlleleSum returns the allele-sum counter for one locus.
func (c *Coverage) AlleleSum(site prg.Symbol, allele int) int64 {
	return c.alleleSum[site.Index()][allele]
}

// AlleleSumRow returns a copy of one site's allele-sum counters.
func (c *Coverage) AlleleSumRow(site prg.Symbol) []int64 {
	return append([]int64(nil), c.alleleSum[site.Index()]...)
}

// SiteGroups returns a site's grouped-allele counts, sorted by allele
// tuple so callers see a deterministic order.
func (c *Coverage) SiteGroups(site prg.Symbol) []GroupCount {
	sg := c.grouped[site.Index()]
	sg.mu.Lock()
	defer sg.mu.Unlock()
	out := make([]GroupCount, 0, len(sg.counts))
	for _, gc := range sg.counts {
		out = append(out, GroupCount{Alleles: append([]int(nil), gc.Alleles...), Count: gc.Count})
	}
	sort.Slice(out, func(i, j int) bool { return lessInts(out[i].Alleles, out[j].Alleles) })
	return out
}

// SiteTotal returns the sum of a site's grouped counts: the number of
// selected mappings that touched the site at all.
func (c *Coverage) SiteTotal(site prg.Symbol) int64 {
	var total int64
	for _, gc := range c.SiteGroups(site) {
		total += gc.Count
	}
	return total
}

// PerBase returns a copy of the per-base counters along one allele of a
// site, concatenated across the allele's node chain. Nested bubbles inside
// the allele make the notion ambiguous; the second return is false then.
func (c *Coverage) PerBase(site prg.Symbol, allele int) ([]uint32, bool) {
	g := c.graph
	bubble := g.BubbleMap[site]
	var out []uint32
	id := g.Node(bubble.Start).Edges[allele]
	for id != bubble.End {
		node := g.Node(id)
		if _, nested := g.BubbleMap[node.SiteID]; nested && node.SiteID != site {
			return nil, false
		}
		out = append(out, node.Coverage...)
		if len(node.Edges) != 1 {
			return nil, false
		}
		id = node.Edges[0]
	}
	if out == nil {
		out = []uint32{}
	}
	return out, true
}

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
