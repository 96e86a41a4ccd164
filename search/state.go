// Package search implements the variant-aware backward search over the
// FM-indexed PRG: standard BWT backward extension,
// forked whenever the suffix-array interval crosses a variant marker, with
// the traversed/traversing locus path tracked per fork.
package search

import (
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
)

// AlleleUnknown marks a traversing-path entry whose allele cannot be
// determined yet: the search entered the site through its closing marker at
// a point where several alleles were still compatible. The entry is
// rewritten in place once extension (or exit) pins the allele down.
const AlleleUnknown = -1

// Locus is one (site, allele) pair on a search path. Allele is 0-based, or
// AlleleUnknown.
type Locus struct {
	Site   prg.Symbol
	Allele int
}

// State is a single branch of the backward search: an SA interval whose
// suffixes all match the pattern processed so far, plus the variant loci
// crossed to get there.
type State struct {
	Interval fmindex.Interval
	// Traversed lists loci fully crossed (entered and exited), in 3'->5'
	// crossing order.
	Traversed []Locus
	// Traversing lists loci entered but not yet exited, outermost first.
	// Only the innermost (last) entry may carry AlleleUnknown.
	Traversing []Locus
	// Encapsulated is set by SplitEncapsulated on states whose every
	// mapping instance lies wholly inside one (site, allele); the mapping
	// selector may then sample a single SA position from the interval.
	Encapsulated bool
}

// HasPath reports whether the state crossed or entered any variant site.
func (s *State) HasPath() bool {
	return len(s.Traversed) > 0 || len(s.Traversing) > 0
}

func (s *State) clone() State {
	ns := State{
		Interval:     s.Interval,
		Encapsulated: s.Encapsulated,
	}
	if len(s.Traversed) > 0 {
		ns.Traversed = append([]Locus(nil), s.Traversed...)
	}
	if len(s.Traversing) > 0 {
		ns.Traversing = append([]Locus(nil), s.Traversing...)
	}
	return ns
}

// traversingTop returns the innermost traversing locus, or nil.
func (s *State) traversingTop() *Locus {
	if len(s.Traversing) == 0 {
		return nil
	}
	return &s.Traversing[len(s.Traversing)-1]
}

// popTraversingToTraversed moves the innermost traversing locus onto the
// traversed path.
func (s *State) popTraversingToTraversed() {
	top := s.Traversing[len(s.Traversing)-1]
	s.Traversing = s.Traversing[:len(s.Traversing)-1]
	s.Traversed = append(s.Traversed, top)
}
