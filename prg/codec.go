package prg

import (
	"strconv"
	"strings"

	"github.com/grailbio/vgraph/vgerrors"
)

var baseToByte = map[Symbol]byte{BaseA: 'A', BaseC: 'C', BaseG: 'G', BaseT: 'T'}

// Byte returns the ACGT byte for a base symbol.
//
// REQUIRES: s.IsBase().
func (s Symbol) Byte() byte {
	b, ok := baseToByte[s]
	if !ok {
		panic(s)
	}
	return b
}

// ByteToBase maps an ACGT byte (case-insensitive) to its Symbol, or false if
// c is not one of A,C,G,T.
func ByteToBase(c byte) (Symbol, bool) {
	s, ok := byteToBase[c]
	return s, ok
}

var byteToBase = map[byte]Symbol{
	'A': BaseA, 'a': BaseA,
	'C': BaseC, 'c': BaseC,
	'G': BaseG, 'g': BaseG,
	'T': BaseT, 't': BaseT,
}

// ParseBracketed decodes the bracketed textual form ("AATAA[C,G]AA") into a
// PRG, allocating a fresh, densely-numbered odd site ID for every '['
// encountered, innermost allocation order following nesting depth as
// encountered left to right.
func ParseBracketed(s string) (*PRG, error) {
	var out []Symbol
	nextID := FirstMarker
	type frame struct{ id Symbol }
	var stack []frame
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '[':
			id := nextID
			nextID += 2
			stack = append(stack, frame{id: id})
			out = append(out, id)
			i++
		case ',':
			if len(stack) == 0 {
				return nil, vgerrors.E(vgerrors.InvalidPRG, "',' outside any site", nil)
			}
			out = append(out, stack[len(stack)-1].id.AlleleSeparator())
			i++
		case ']':
			if len(stack) == 0 {
				return nil, vgerrors.E(vgerrors.InvalidPRG, "unmatched ']'", nil)
			}
			top := stack[len(stack)-1]
			out = append(out, top.id)
			stack = stack[:len(stack)-1]
			i++
		default:
			b, ok := byteToBase[c]
			if !ok {
				return nil, vgerrors.E(vgerrors.InvalidPRG, "unrecognised base byte: "+string(c), nil)
			}
			out = append(out, b)
			i++
		}
	}
	if len(stack) != 0 {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "unclosed '[' at end of input", nil)
	}
	p := &PRG{Symbols: out}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Bracketed re-encodes the PRG in bracketed form. Round-tripping a PRG
// parsed by ParseBracketed through Bracketed reproduces the original text
// modulo site-ID renaming: nesting and base content are preserved
// exactly, but a PRG built via the numbered form (ParseNumbered) may have
// had arbitrary site IDs that are renumbered here.
func (p *PRG) Bracketed() string {
	var b strings.Builder
	// stack holds the open sites, so a site marker matching the innermost
	// open site is written as ']' and any other as '['.
	type frame struct {
		id        Symbol
		nextIsSep bool
	}
	var stack []frame
	for _, s := range p.Symbols {
		switch {
		case s.IsBase():
			b.WriteByte(baseToByte[s])
		case s.IsSiteMarker():
			if len(stack) > 0 && stack[len(stack)-1].id == s {
				b.WriteByte(']')
				stack = stack[:len(stack)-1]
				continue
			}
			b.WriteByte('[')
			stack = append(stack, frame{id: s})
		case s.IsAlleleSeparator():
			b.WriteByte(',')
		}
	}
	return b.String()
}

// ParseNumbered decodes the numbered textual form ("AATAA5C6G5AA", markers
// written as decimal literals inline with base letters) into a PRG. Because
// this form encodes arbitrary user-chosen site IDs, round-tripping through
// Bracketed/ParseBracketed will renumber them: the numbered form preserves
// arbitrary user-chosen site IDs but loses them on that round-trip.
//
// Two marker conventions are accepted. The canonical one closes each site
// with its odd marker ("5C6G5"). The historical one closes with a trailing
// allele separator instead ("5C6G6"), leaving the odd marker with a single
// occurrence; such sites are normalised in place by rewriting the last
// separator occurrence to the odd close marker, so the rest of the codebase
// only ever sees the canonical form.
func ParseNumbered(s string) (*PRG, error) {
	var out []Symbol
	i := 0
	for i < len(s) {
		c := s[i]
		if c >= '0' && c <= '9' {
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			n, err := strconv.ParseInt(s[i:j], 10, 64)
			if err != nil {
				return nil, vgerrors.E(vgerrors.InvalidPRG, "bad marker literal", err)
			}
			sym := Symbol(n)
			if sym < FirstMarker {
				return nil, vgerrors.E(vgerrors.InvalidPRG, "marker literal below FirstMarker", nil)
			}
			out = append(out, sym)
			i = j
			continue
		}
		b, ok := byteToBase[c]
		if !ok {
			return nil, vgerrors.E(vgerrors.InvalidPRG, "unrecognised base byte: "+string(c), nil)
		}
		out = append(out, b)
		i++
	}
	normalizeLegacyCloses(out)
	p := &PRG{Symbols: out}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// normalizeLegacyCloses rewrites separator-closed sites to the canonical
// odd-closed form. A site is separator-closed iff its odd marker occurs
// exactly once; the close is then the site's last separator occurrence.
func normalizeLegacyCloses(symbols []Symbol) {
	oddCount := map[Symbol]int{}
	lastSep := map[Symbol]int{}
	for i, s := range symbols {
		switch {
		case s.IsSiteMarker():
			oddCount[s]++
		case s.IsAlleleSeparator():
			lastSep[s.SiteID()] = i
		}
	}
	for site, n := range oddCount {
		if n != 1 {
			continue
		}
		if i, ok := lastSep[site]; ok {
			symbols[i] = site
		}
	}
}

// Numbered re-encodes the PRG in numbered form, preserving whatever site IDs
// are currently in Symbols (no renumbering).
func (p *PRG) Numbered() string {
	var b strings.Builder
	for _, s := range p.Symbols {
		if s.IsBase() {
			b.WriteByte(baseToByte[s])
		} else {
			b.WriteString(strconv.FormatInt(int64(s), 10))
		}
	}
	return b.String()
}
