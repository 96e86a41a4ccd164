// Package prg implements the linearised Population Reference Graph codec:
// the integer alphabet, conversions between the
// bracketed and numbered textual forms, and the persisted on-disk format.
package prg

import (
	"github.com/grailbio/vgraph/vgerrors"
)

// Symbol is one element of a linearised PRG. Values 1..4 encode DNA bases;
// values >=5 are variant markers. Odd markers are site IDs, even markers are
// the allele separator belonging to the site one less than them.
type Symbol int64

// Base symbols.
const (
	BaseA Symbol = 1
	BaseC Symbol = 2
	BaseG Symbol = 3
	BaseT Symbol = 4
	// FirstMarker is the smallest legal marker value. Site IDs are allocated
	// densely from here upward, two apart (odd site marker, even separator).
	FirstMarker Symbol = 5
)

// IsBase reports whether s is one of A,C,G,T.
func (s Symbol) IsBase() bool { return s >= BaseA && s <= BaseT }

// IsMarker reports whether s is a variant marker (site or allele separator).
func (s Symbol) IsMarker() bool { return s >= FirstMarker }

// IsSiteMarker reports whether s is an odd marker: a site's open/close ID.
func (s Symbol) IsSiteMarker() bool { return s.IsMarker() && s%2 == 1 }

// IsAlleleSeparator reports whether s is an even marker: an allele
// separator within some site.
func (s Symbol) IsAlleleSeparator() bool { return s.IsMarker() && s%2 == 0 }

// SiteID returns the odd site-marker value that s belongs to. If s is
// already a site marker it is returned unchanged; if s is that site's
// allele separator (s+1), the owning site ID (s-1) is returned.
//
// REQUIRES: s.IsMarker().
func (s Symbol) SiteID() Symbol {
	if !s.IsMarker() {
		panic(s)
	}
	if s.IsSiteMarker() {
		return s
	}
	return s - 1
}

// AlleleSeparator returns the even allele-separator marker for the site
// whose odd ID is s.
//
// REQUIRES: s.IsSiteMarker().
func (s Symbol) AlleleSeparator() Symbol {
	if !s.IsSiteMarker() {
		panic(s)
	}
	return s + 1
}

// Index returns the dense 0-based bubble index (s-FirstMarker)/2 for a site
// marker s; site IDs are allocated densely, two apart.
func (s Symbol) Index() int {
	if !s.IsSiteMarker() {
		panic(s)
	}
	return int((s - FirstMarker) / 2)
}

// SiteIDForIndex is the inverse of Index.
func SiteIDForIndex(index int) Symbol {
	return FirstMarker + Symbol(index)*2
}

// PRG is a parsed, integer-vector linearised PRG.
type PRG struct {
	Symbols []Symbol
}

// NumSites returns the number of distinct sites (bubbles) referenced by the
// PRG, assuming dense site-ID allocation starting at FirstMarker.
func (p *PRG) NumSites() int {
	max := -1
	for _, s := range p.Symbols {
		if s.IsSiteMarker() {
			if idx := s.Index(); idx > max {
				max = idx
			}
		}
	}
	return max + 1
}

// Validate checks the PRG's structural invariants: every
// opened site is closed exactly once, allele separators never appear
// outside their owning site, sites nest properly, and every site has at
// least two alleles (at least one separator between its open and close
// markers).
func (p *PRG) Validate() error {
	type openSite struct {
		id        Symbol
		nSeps     int
		sawSymbol bool
	}
	var stack []openSite
	seen := map[Symbol]bool{}
	for i, s := range p.Symbols {
		switch {
		case s.IsBase():
			if len(stack) > 0 {
				stack[len(stack)-1].sawSymbol = true
			}
		case s.IsSiteMarker():
			if len(stack) > 0 && stack[len(stack)-1].id == s {
				// Closing marker.
				top := stack[len(stack)-1]
				if top.nSeps < 1 {
					return vgerrors.E(vgerrors.InvalidPRG, "site has fewer than 2 alleles", nil)
				}
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					stack[len(stack)-1].sawSymbol = true
				}
				continue
			}
			if seen[s] {
				return vgerrors.E(vgerrors.InvalidPRG, "site marker reused or unbalanced", nil)
			}
			seen[s] = true
			stack = append(stack, openSite{id: s})
		case s.IsAlleleSeparator():
			owner := s.SiteID()
			if len(stack) == 0 || stack[len(stack)-1].id != owner {
				return vgerrors.E(vgerrors.InvalidPRG, "allele separator outside its owning site", nil)
			}
			stack[len(stack)-1].nSeps++
		default:
			return vgerrors.E(vgerrors.InvalidPRG, "symbol out of range", nil)
		}
		_ = i
	}
	if len(stack) != 0 {
		return vgerrors.E(vgerrors.InvalidPRG, "unclosed site at end of PRG", nil)
	}
	return nil
}
