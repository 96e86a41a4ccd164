package search

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/vgerrors"
)

// siteLayout records where one site's markers sit in the linearised PRG and
// in the suffix array. Separator positions are in ascending text order;
// sepIdx inverts that ordering.
type siteLayout struct {
	id       prg.Symbol
	openPos  int
	closePos int
	sepPos   []int
	sepIdx   map[int]int
	// openRow/closeRow are the SA rows of the suffixes starting at
	// openPos/closePos.
	openRow  int
	closeRow int
	// sepInterval is the SA interval of the site's allele separator symbol.
	sepInterval fmindex.Interval
	numAlleles  int
}

// Searcher bundles the read-only structures one PRG needs for quasi-mapping:
// the FM-index, the coverage graph, and per-site marker layout tables. It is
// safe for concurrent use once constructed.
type Searcher struct {
	idx   *fmindex.FMIndex
	graph *covgraph.Graph
	sites map[prg.Symbol]*siteLayout
}

// New builds a Searcher over an FM-index and the coverage graph of the same
// PRG.
func New(idx *fmindex.FMIndex, graph *covgraph.Graph) (*Searcher, error) {
	s := &Searcher{
		idx:   idx,
		graph: graph,
		sites: map[prg.Symbol]*siteLayout{},
	}
	// Text scan: first odd occurrence opens a site, second closes it.
	for i := 0; i < idx.Len(); i++ {
		sym := idx.Text(i)
		if !sym.IsMarker() {
			continue
		}
		if sym.IsSiteMarker() {
			layout := s.sites[sym]
			if layout == nil {
				s.sites[sym] = &siteLayout{id: sym, openPos: i, closePos: -1, sepIdx: map[int]int{}}
			} else if layout.closePos == -1 {
				layout.closePos = i
			} else {
				return nil, vgerrors.E(vgerrors.InvalidPRG, "site marker occurs more than twice", nil)
			}
			continue
		}
		layout := s.sites[sym.SiteID()]
		if layout == nil {
			return nil, vgerrors.E(vgerrors.InvalidPRG, "allele separator before its site opens", nil)
		}
		layout.sepIdx[i] = len(layout.sepPos)
		layout.sepPos = append(layout.sepPos, i)
	}
	for _, layout := range s.sites {
		if layout.closePos == -1 {
			return nil, vgerrors.E(vgerrors.InvalidPRG, "unclosed site in indexed text", nil)
		}
		layout.numAlleles = len(layout.sepPos) + 1
		iv, err := idx.SiteInterval(layout.id)
		if err != nil {
			return nil, err
		}
		for row := iv.Lo; row < iv.Hi; row++ {
			switch idx.SA(row) {
			case layout.openPos:
				layout.openRow = row
			case layout.closePos:
				layout.closeRow = row
			default:
				return nil, vgerrors.E(vgerrors.InternalInvariant, "site marker SA row maps to unexpected text position", nil)
			}
		}
		if layout.sepInterval, err = idx.AlleleSeparatorInterval(layout.id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Index returns the underlying FM-index.
func (s *Searcher) Index() *fmindex.FMIndex { return s.idx }

// Graph returns the underlying coverage graph.
func (s *Searcher) Graph() *covgraph.Graph { return s.graph }

// NumAlleles returns the allele count of a site.
func (s *Searcher) NumAlleles(site prg.Symbol) int { return s.sites[site].numAlleles }

// AlleleContentStart returns the text position of the first symbol of the
// given allele's content (which may itself be a marker, for an allele
// beginning with a nested site, or the allele's terminating marker when the
// allele is empty).
func (s *Searcher) AlleleContentStart(site prg.Symbol, allele int) int {
	layout := s.sites[site]
	if allele == 0 {
		return layout.openPos + 1
	}
	return layout.sepPos[allele-1] + 1
}

// SiteExitPos returns the first text position after the site's closing
// marker.
func (s *Searcher) SiteExitPos(site prg.Symbol) int { return s.sites[site].closePos + 1 }

// SiteOpenPos returns the text position of the site's opening marker.
func (s *Searcher) SiteOpenPos(site prg.Symbol) int { return s.sites[site].openPos }

// AlleleWithin climbs the coverage graph's nesting tables to find which
// allele of site the text position pos lies in. The second return is false
// when pos is not inside site at all.
func (s *Searcher) AlleleWithin(pos int, site prg.Symbol) (int, bool) {
	entry := s.graph.RandomAccess[pos]
	node := s.graph.Node(entry.Node)
	cur, allele := node.SiteID, node.AlleleID
	for cur != 0 {
		if cur == site {
			return allele, allele >= 0
		}
		parent, ok := s.graph.ParentMap[cur]
		if !ok {
			return 0, false
		}
		cur, allele = parent.ParentSite, parent.ParentHaplogroup
	}
	return 0, false
}

// LocusChain returns the locus (site, allele) at pos for its innermost
// enclosing site plus every ancestor site's locus, innermost first. Empty
// when pos lies outside all sites.
func (s *Searcher) LocusChain(pos int) []Locus {
	entry := s.graph.RandomAccess[pos]
	node := s.graph.Node(entry.Node)
	var out []Locus
	cur, allele := node.SiteID, node.AlleleID
	for cur != 0 && allele >= 0 {
		out = append(out, Locus{Site: cur, Allele: allele})
		parent, ok := s.graph.ParentMap[cur]
		if !ok {
			break
		}
		cur, allele = parent.ParentSite, parent.ParentHaplogroup
	}
	return out
}

// AncestorChain returns the loci of every site enclosing the given site,
// innermost first, using the parent map's haplogroups.
func (s *Searcher) AncestorChain(site prg.Symbol) []Locus {
	var out []Locus
	cur := site
	for {
		parent, ok := s.graph.ParentMap[cur]
		if !ok {
			return out
		}
		out = append(out, Locus{Site: parent.ParentSite, Allele: parent.ParentHaplogroup})
		cur = parent.ParentSite
	}
}

// Level0Site returns the outermost enclosing site of site (site itself when
// un-nested).
func (s *Searcher) Level0Site(site prg.Symbol) prg.Symbol {
	cur := site
	for {
		parent, ok := s.graph.ParentMap[cur]
		if !ok {
			return cur
		}
		cur = parent.ParentSite
	}
}

func (s *Searcher) mustLayout(site prg.Symbol) *siteLayout {
	layout := s.sites[site]
	if layout == nil {
		log.Panicf("search: no layout for site %d", site)
	}
	return layout
}
