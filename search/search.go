package search

import (
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
)

// Extend performs one character of backward extension on every state in
// two phases: first the marker-jump phase
// forks states whose SA interval crosses variant markers (repeated for
// adjacent markers, so direct deletions and nested-site boundaries need no
// intervening base), then every state is extended with b and empty results
// are discarded. Unknown-allele traversing entries are resolved in place
// where the surviving interval pins them to a single allele.
func (s *Searcher) Extend(states []State, b prg.Symbol) []State {
	var jumped []State
	for i := range states {
		jumped = s.processMarkers(states[i], jumped)
	}
	var out []State
	for i := range jumped {
		st := jumped[i]
		st.Interval = s.idx.Extend(st.Interval, b)
		if st.Interval.Empty() {
			continue
		}
		s.resolveUnknown(&st)
		out = append(out, st)
	}
	return out
}

// processMarkers appends st and every state reachable from it by marker
// jumps to out. Each marker occurrence in st's interval spawns its own
// fork; forks are processed recursively so that runs of adjacent markers
// (empty alleles, sites nested flush against a bubble boundary) chain
// without consuming a pattern base.
func (s *Searcher) processMarkers(st State, out []State) []State {
	out = append(out, st)
	for _, occ := range s.idx.MarkersIn(st.Interval) {
		// occ.Marker sits at text position occ.TextPos-1, immediately
		// before this row's suffix.
		markerPos := occ.TextPos - 1
		if occ.Marker.IsSiteMarker() {
			layout := s.mustLayout(occ.Marker)
			if markerPos == layout.closePos {
				out = s.enterSite(st, occ.SAIndex, layout, out)
				continue
			}
			// Opening marker: the suffix hangs off the site's first
			// allele.
			out = s.exitSite(st, occ.SAIndex, layout, 0, out)
			continue
		}
		layout := s.mustLayout(occ.Marker.SiteID())
		// Crossing separator #q (0-based) means leaving allele q+1.
		out = s.exitSite(st, occ.SAIndex, layout, layout.sepIdx[markerPos]+1, out)
	}
	return out
}

// narrowToRow clones st down to the single SA row that triggered a jump,
// resolving an unknown innermost allele from the row's own start position
// when possible. Returns false when the row contradicts the state's path
// (it then simply doesn't belong to this fork).
func (s *Searcher) narrowToRow(st State, row int) (State, bool) {
	ns := st.clone()
	ns.Interval = fmindex.Interval{Lo: row, Hi: row + 1}
	top := ns.traversingTop()
	if top == nil || top.Allele != AlleleUnknown {
		return ns, true
	}
	layout := s.mustLayout(top.Site)
	t := s.idx.SA(row)
	switch {
	case t == layout.closePos:
		top.Allele = layout.numAlleles - 1
	default:
		if q, ok := layout.sepIdx[t]; ok {
			// Row sits on separator #q, which terminates allele q.
			top.Allele = q
		} else if a, ok := s.AlleleWithin(t, top.Site); ok {
			top.Allele = a
		} else {
			return ns, false
		}
	}
	return ns, true
}

// enterSite forks st into the per-allele entry states of a site reached
// through its closing marker: one state covering the allele-separator
// interval (alleles 0..k-2; allele unknown when more than one separator
// exists) and one state on the closing marker's own row (the last allele).
func (s *Searcher) enterSite(st State, row int, layout *siteLayout, out []State) []State {
	base, ok := s.narrowToRow(st, row)
	if !ok {
		return out
	}

	seps := base.clone()
	seps.Interval = layout.sepInterval
	sepAllele := AlleleUnknown
	if layout.numAlleles == 2 {
		sepAllele = 0
	}
	seps.Traversing = append(seps.Traversing, Locus{Site: layout.id, Allele: sepAllele})
	out = s.processMarkers(seps, out)

	last := base.clone()
	last.Interval = fmindex.Interval{Lo: layout.closeRow, Hi: layout.closeRow + 1}
	last.Traversing = append(last.Traversing, Locus{Site: layout.id, Allele: layout.numAlleles - 1})
	out = s.processMarkers(last, out)
	return out
}

// exitSite forks st through the site's 5' boundary: the new state continues
// from the suffix starting at the opening marker, and the exited locus
// moves onto the traversed path. allele is the 0-based allele the crossing
// identifies.
func (s *Searcher) exitSite(st State, row int, layout *siteLayout, allele int, out []State) []State {
	ns, ok := s.narrowToRow(st, row)
	if !ok {
		return out
	}
	ns.Interval = fmindex.Interval{Lo: layout.openRow, Hi: layout.openRow + 1}
	if top := ns.traversingTop(); top != nil && top.Site == layout.id {
		if top.Allele == AlleleUnknown {
			top.Allele = allele
		} else if top.Allele != allele {
			// The row crosses a different allele than the one this fork
			// is committed to; some sibling fork owns it.
			return out
		}
		ns.popTraversingToTraversed()
	} else {
		// No entry was seen: the read's 3' end lies inside the site.
		ns.Traversed = append(ns.Traversed, Locus{Site: layout.id, Allele: allele})
	}
	return s.processMarkers(ns, out)
}

// resolveUnknown rewrites an unknown innermost allele once every SA row of
// the state's interval lies in the same allele of that site.
func (s *Searcher) resolveUnknown(st *State) {
	top := st.traversingTop()
	if top == nil || top.Allele != AlleleUnknown {
		return
	}
	resolved := AlleleUnknown
	for row := st.Interval.Lo; row < st.Interval.Hi; row++ {
		a, ok := s.AlleleWithin(s.idx.SA(row), top.Site)
		if !ok {
			return
		}
		if resolved == AlleleUnknown {
			resolved = a
		} else if resolved != a {
			return
		}
	}
	if resolved != AlleleUnknown {
		top.Allele = resolved
	}
}

// SearchReadBackwards quasi-maps a read: backward search from the 3' end
// over the whole pattern, followed by encapsulated-state splitting so every
// surviving mapping carries a well-defined site path. Returns nil when the
// read has no exact match in the graph.
func (s *Searcher) SearchReadBackwards(read []prg.Symbol) []State {
	if len(read) == 0 {
		return nil
	}
	// The first character extends the empty pattern: every marker row in
	// the full interval is meaningless then, so the jump phase starts with
	// the second character.
	states := []State{{Interval: s.idx.FullInterval()}}
	last := len(read) - 1
	states[0].Interval = s.idx.Extend(states[0].Interval, read[last])
	if states[0].Interval.Empty() {
		return nil
	}
	for i := last - 1; i >= 0; i-- {
		states = s.Extend(states, read[i])
		if len(states) == 0 {
			return nil
		}
	}
	return s.SplitEncapsulated(states)
}
