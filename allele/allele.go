// Package allele materialises the candidate alleles of one bubble for
// genotyping: each haplogroup of the site is walked
// start to end, concatenating node sequences and per-base coverages, and
// pausing at nested bubbles to paste in the alleles their (previously
// computed) genotype calls selected.
package allele

import (
	"strings"

	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/prg"
)

// Allele is one candidate sequence through a bubble.
type Allele struct {
	Seq string
	// PbCov carries one per-base coverage counter per byte of Seq.
	PbCov []uint32
	// Haplogroup is the 0-based index of the bubble-start edge this allele
	// hangs off; pasted child alleles keep the outer haplogroup.
	Haplogroup int
	// Callable is false for alleles produced only to preserve REF
	// continuity (a synthesised REF, or anything built from a next-best
	// child allele); they are excluded from likelihood ranking.
	Callable bool
}

// Append returns a with other's sequence and coverage concatenated onto
// it. Haplogroup follows a; callability is the conjunction.
func (a Allele) Append(other Allele) Allele {
	cov := make([]uint32, 0, len(a.PbCov)+len(other.PbCov))
	cov = append(cov, a.PbCov...)
	cov = append(cov, other.PbCov...)
	return Allele{
		Seq:        a.Seq + other.Seq,
		PbCov:      cov,
		Haplogroup: a.Haplogroup,
		Callable:   a.Callable && other.Callable,
	}
}

// GenotypedSite is what the extracter needs from a previously genotyped
// child bubble: the alleles its call selected (plus any exported next-best
// alleles, already flagged non-callable). A null site pastes its stored
// REF allele so extraction through it stays possible.
type GenotypedSite interface {
	PasteAlleles() []Allele
}

// SiteSource resolves a child site ID to its genotyped record. Extraction
// runs innermost-first, so every child encountered has been genotyped.
type SiteSource func(site prg.Symbol) GenotypedSite

// Extract walks every haplogroup of the bubble and returns the candidate
// allele set, plus whether the REF allele (haplogroup 0, REF path through
// every nested child) was produced naturally. When it was not (say the
// first haplogroup contains a child whose genotype omits REF), a
// synthesised REF is prepended and flagged non-callable.
func Extract(g *covgraph.Graph, site prg.Symbol, source SiteSource) (alleles []Allele, refNatural bool) {
	bubble := g.BubbleMap[site]
	start := g.Node(bubble.Start)
	for h := range start.Edges {
		alleles = append(alleles, extractHaplogroup(g, site, h, source)...)
	}
	ref := refWalk(g, site)
	for _, a := range alleles {
		if a.Haplogroup != 0 {
			break
		}
		if a.Seq == ref.Seq {
			refNatural = true
			break
		}
	}
	if !refNatural {
		alleles = append([]Allele{ref}, alleles...)
	}
	return alleles, refNatural
}

// extractHaplogroup linearly traverses one haplogroup, combining with
// child-site calls as they come. Without nested sites it always yields a
// single allele.
func extractHaplogroup(g *covgraph.Graph, site prg.Symbol, h int, source SiteSource) []Allele {
	current := []Allele{{Haplogroup: h, Callable: true}}
	bubble := g.BubbleMap[site]
	id := g.Node(bubble.Start).Edges[h]
	for id != bubble.End {
		node := g.Node(id)
		if child := childBubbleStart(g, site, id, node); child != 0 {
			current = combine(current, source(child).PasteAlleles())
			id = g.Node(g.BubbleMap[child].End).Edges[0]
			continue
		}
		if len(node.Sequence) > 0 {
			piece := Allele{Seq: seqString(node.Sequence), PbCov: node.Coverage, Callable: true}
			for i := range current {
				current[i] = current[i].Append(piece)
			}
		}
		id = node.Edges[0]
	}
	return current
}

// combine takes the Cartesian product of the accumulated alleles with a
// child site's pasted alleles, outer haplogroup preserved.
func combine(existing []Allele, pasted []Allele) []Allele {
	out := make([]Allele, 0, len(existing)*len(pasted))
	for _, e := range existing {
		for _, p := range pasted {
			out = append(out, e.Append(p))
		}
	}
	return out
}

// refWalk produces the REF allele unconditionally: haplogroup 0 of the
// site and of every nested child, straight off the graph.
func refWalk(g *covgraph.Graph, site prg.Symbol) Allele {
	out := Allele{Haplogroup: 0}
	bubble := g.BubbleMap[site]
	id := g.Node(bubble.Start).Edges[0]
	for id != bubble.End {
		node := g.Node(id)
		if child := childBubbleStart(g, site, id, node); child != 0 {
			childRef := refWalk(g, child)
			childRef.Haplogroup = 0
			out = out.Append(childRef)
			id = g.Node(g.BubbleMap[child].End).Edges[0]
			continue
		}
		if len(node.Sequence) > 0 {
			out = out.Append(Allele{Seq: seqString(node.Sequence), PbCov: node.Coverage})
		}
		id = node.Edges[0]
	}
	return out
}

// childBubbleStart reports the site ID when id is the bubble-start
// sentinel of a site nested inside the one being extracted, 0 otherwise.
func childBubbleStart(g *covgraph.Graph, site prg.Symbol, id covgraph.NodeID, node *covgraph.Node) prg.Symbol {
	if node.SiteID == site || node.SiteID == 0 || node.AlleleID >= 0 {
		return 0
	}
	if bubble, ok := g.BubbleMap[node.SiteID]; ok && bubble.Start == id {
		return node.SiteID
	}
	return 0
}

func seqString(seq []prg.Symbol) string {
	var b strings.Builder
	for _, s := range seq {
		b.WriteByte(s.Byte())
	}
	return b.String()
}
