package genotype

import (
	"github.com/grailbio/vgraph/allele"
	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/prg"
)

// Params carries the genotyping configuration explicitly (no package
// state).
type Params struct {
	Ploidy Ploidy
	// GCP enables the confidence-percentile calibration pass.
	GCP bool
	// Seed feeds the calibration sampler and is used as given; the CLI
	// substitutes an OS-random value for a requested 0 before filling it.
	Seed uint64
	// AmbigConf is the GT_CONF at or below which a call is flagged AMBIG.
	AmbigConf float64
	// MinSiteCov is the total site coverage below which a non-null call is
	// flagged AMBIG.
	MinSiteCov int64
}

// DefaultParams returns the stock genotyping configuration.
func DefaultParams() *Params {
	return &Params{Ploidy: Haploid, GCP: true, AmbigConf: 1.0, MinSiteCov: 2}
}

// Genotyper runs the per-bubble likelihood model over a finished coverage
// snapshot, innermost bubbles first, and owns the resulting records.
type Genotyper struct {
	graph   *covgraph.Graph
	cov     *coverage.Coverage
	lstats  *LikelihoodStats
	params  *Params
	records []*Site
}

// Run genotypes every bubble. The coverage snapshot is treated as
// immutable.
func Run(g *covgraph.Graph, cov *coverage.Coverage, stats *ReadStats, params *Params) *Genotyper {
	gt := &Genotyper{
		graph:   g,
		cov:     cov,
		lstats:  MakeLikelihoodStats(stats.MeanDepth, stats.VarDepth, stats.MeanPbError()),
		params:  params,
		records: make([]*Site, cov.NumSites()),
	}
	for _, siteID := range g.BubbleOrder {
		gt.genotypeSite(siteID)
	}
	return gt
}

// Records returns every genotyped site, indexed densely by (siteID-5)/2.
func (gt *Genotyper) Records() []*Site { return gt.records }

// Record returns one site's record.
func (gt *Genotyper) Record(siteID prg.Symbol) *Site { return gt.records[siteID.Index()] }

// LStats exposes the fitted likelihood stats (used by the calibration
// pass and tests).
func (gt *Genotyper) LStats() *LikelihoodStats { return gt.lstats }

func (gt *Genotyper) genotypeSite(siteID prg.Symbol) {
	g := gt.graph
	bubble := g.BubbleMap[siteID]
	alleles, refNatural := allele.Extract(g, siteID, func(child prg.Symbol) allele.GenotypedSite {
		return gt.records[child.Index()]
	})
	site := runModel(modelInput{
		alleles:        alleles,
		groups:         gt.cov.SiteGroups(siteID),
		numHaplogroups: len(g.Node(bubble.Start).Edges),
		ploidy:         gt.params.Ploidy,
		lstats:         gt.lstats,
		ignoreRef:      !refNatural,
	})
	site.SiteID = siteID
	site.Pos = g.Node(bubble.Start).Position
	site.Percentile = -1
	gt.records[siteID.Index()] = site

	if site.TotalCov == 0 {
		site.SetFilter(FilterMissingDepth)
	}
	ambig := !site.IsNull() &&
		(site.GTConf <= gt.params.AmbigConf || site.TotalCov < gt.params.MinSiteCov)
	if ambig {
		site.SetFilter(FilterAmbig)
	} else {
		site.Extra = nil
	}

	gt.invalidateExcludedChildren(site)

	// A filtered child taints the whole subtree's ancestors, and an
	// ambiguous parent taints everything below it.
	if gt.anyChildHasFilter(siteID, FilterAmbig) {
		site.SetFilter(FilterAmbig)
	}
	if site.HasFilter(FilterAmbig) {
		gt.propagateFilterDown(siteID, FilterAmbig)
	}
}

// invalidateExcludedChildren nulls every site nested under a haplogroup
// the call excluded; a null call excludes all of them. Already-null
// children short-circuit the walk.
func (gt *Genotyper) invalidateExcludedChildren(site *Site) {
	children := gt.graph.ChildMap[site.SiteID]
	if children == nil {
		return
	}
	excluded := site.nonGenotypedHaplogroups()
	if site.IsNull() {
		excluded = site.allHaplogroups()
	}
	type locus struct {
		site prg.Symbol
		hap  int
	}
	var stack []locus
	for _, h := range excluded {
		stack = append(stack, locus{site.SiteID, h})
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range gt.graph.ChildMap[cur.site][cur.hap] {
			rec := gt.records[child.Index()]
			if rec.IsNull() {
				continue
			}
			rec.MakeNull()
			for h := range gt.graph.ChildMap[child] {
				stack = append(stack, locus{child, h})
			}
		}
	}
}

// anyChildHasFilter looks for a direct child carrying the filter.
// Invalidated (null) children don't count: their branch is excluded from
// the call, so their ambiguity says nothing about the parent's.
func (gt *Genotyper) anyChildHasFilter(siteID prg.Symbol, name string) bool {
	for _, children := range gt.graph.ChildMap[siteID] {
		for _, child := range children {
			rec := gt.records[child.Index()]
			if !rec.IsNull() && rec.HasFilter(name) {
				return true
			}
		}
	}
	return false
}

func (gt *Genotyper) propagateFilterDown(siteID prg.Symbol, name string) {
	stack := []prg.Symbol{siteID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, children := range gt.graph.ChildMap[cur] {
			for _, child := range children {
				rec := gt.records[child.Index()]
				if rec.HasFilter(name) {
					continue
				}
				rec.SetFilter(name)
				stack = append(stack, child)
			}
		}
	}
}
