// Package fmindex builds and queries the FM-index over the PRG's extended
// alphabet: a suffix array, its Burrows-Wheeler
// transform, rank support for every symbol (dense for the four bases,
// sparse for variant markers), and the marker-occurrence bitmap the vBWT
// search uses to find where a suffix interval crosses a site boundary.
package fmindex

import (
	"sort"

	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/vgerrors"
)

// sentinel sorts before every real symbol.
const sentinel prg.Symbol = -1

// Interval is a half-open SA range [Lo, Hi).
type Interval struct {
	Lo, Hi int
}

// Empty reports whether the interval contains no suffixes.
func (iv Interval) Empty() bool { return iv.Hi <= iv.Lo }

// Size returns the number of suffixes covered.
func (iv Interval) Size() int { return iv.Hi - iv.Lo }

// FMIndex is the queryable FM-index for one PRG.
type FMIndex struct {
	// n is len(text), including the trailing sentinel.
	n int
	// text is the original symbol sequence plus sentinel, kept so random
	// access and marker classification don't need to round-trip through the
	// BWT.
	text []prg.Symbol
	// sa[i] is the starting position in text of the i'th suffix in sorted
	// order.
	sa []int32
	// bwt[i] = text[(sa[i]-1+n)%n].
	bwt []prg.Symbol
	// cArray[c] = number of symbols strictly less than c across the whole
	// text (standard FM-index C array).
	cArray map[prg.Symbol]int
	// baseRankPrefix[b][i] = count of base b in bwt[0:i], for b in
	// {A,C,G,T} (index 0..3). Dense: base ranks are on the hot path of
	// every extension step.
	baseRankPrefix [4][]int32
	// markerPositions[m] is the sorted list of BWT indices holding marker
	// value m. Sparse: marker occurrences are few.
	markerPositions map[prg.Symbol][]int32
	// markerBitmap has bit i set iff bwt[i] is a variant marker.
	markerBitmap []uint64

	checksum [32]byte
}

func baseSlot(b prg.Symbol) int {
	switch b {
	case prg.BaseA:
		return 0
	case prg.BaseC:
		return 1
	case prg.BaseG:
		return 2
	case prg.BaseT:
		return 3
	default:
		panic(b)
	}
}

// Build constructs an FM-index from a validated PRG.
func Build(p *prg.PRG) (*FMIndex, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(p.Symbols) + 1
	text := make([]prg.Symbol, n)
	copy(text, p.Symbols)
	text[n-1] = sentinel

	sa := buildSuffixArray(text)

	idx := &FMIndex{
		n:               n,
		text:            text,
		sa:              sa,
		bwt:             make([]prg.Symbol, n),
		cArray:          map[prg.Symbol]int{},
		markerPositions: map[prg.Symbol][]int32{},
	}
	for i, s := range sa {
		idx.bwt[i] = text[(int(s)-1+n)%n]
	}

	// C-array: count occurrences of every distinct symbol, then prefix-sum
	// in sorted symbol order.
	counts := map[prg.Symbol]int{}
	for _, s := range text {
		counts[s]++
	}
	distinct := make([]prg.Symbol, 0, len(counts))
	for s := range counts {
		distinct = append(distinct, s)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })
	running := 0
	for _, s := range distinct {
		idx.cArray[s] = running
		running += counts[s]
	}

	for b := 0; b < 4; b++ {
		idx.baseRankPrefix[b] = make([]int32, n+1)
	}
	idx.markerBitmap = make([]uint64, (n+63)/64)
	for i, s := range idx.bwt {
		for b := 0; b < 4; b++ {
			idx.baseRankPrefix[b][i+1] = idx.baseRankPrefix[b][i]
		}
		switch {
		case s.IsBase():
			idx.baseRankPrefix[baseSlot(s)][i+1]++
		case s.IsMarker():
			idx.markerPositions[s] = append(idx.markerPositions[s], int32(i))
			idx.markerBitmap[i/64] |= 1 << uint(i%64)
		}
	}

	idx.checksum = idx.computeChecksum()
	return idx, nil
}

// Len returns the length of the indexed text, including the sentinel.
func (idx *FMIndex) Len() int { return idx.n }

// Text returns the symbol at a raw text position (not an SA position).
func (idx *FMIndex) Text(pos int) prg.Symbol { return idx.text[pos] }

// SA returns the text position of the i'th suffix in sorted order.
func (idx *FMIndex) SA(i int) int { return int(idx.sa[i]) }

// BWTAt returns the BWT symbol at SA-sorted position i.
func (idx *FMIndex) BWTAt(i int) prg.Symbol { return idx.bwt[i] }

// C returns the C-array entry for symbol c: the number of symbols in the
// text strictly smaller than c.
func (idx *FMIndex) C(c prg.Symbol) int { return idx.cArray[c] }

// Rank returns the number of occurrences of symbol c in bwt[0:i]. Bases use
// the dense prefix array; markers use binary search over the sparse
// position list.
func (idx *FMIndex) Rank(c prg.Symbol, i int) int {
	if c.IsBase() {
		return int(idx.baseRankPrefix[baseSlot(c)][i])
	}
	positions := idx.markerPositions[c]
	return sort.Search(len(positions), func(k int) bool { return int(positions[k]) >= i })
}

// Extend performs one step of standard backward search: given the SA
// interval for a suffix of the pattern and the next (5'-ward) symbol c,
// returns the SA interval for c followed by that suffix, or an empty
// interval if no such suffix exists.
func (idx *FMIndex) Extend(iv Interval, c prg.Symbol) Interval {
	base := idx.C(c)
	return Interval{
		Lo: base + idx.Rank(c, iv.Lo),
		Hi: base + idx.Rank(c, iv.Hi),
	}
}

// FullInterval returns the SA interval spanning the whole text, the
// starting point for a from-empty-interval backward search.
func (idx *FMIndex) FullInterval() Interval { return Interval{Lo: 0, Hi: idx.n} }

// SiteInterval returns the SA interval of the two occurrences of the
// given odd site marker.
func (idx *FMIndex) SiteInterval(siteID prg.Symbol) (Interval, error) {
	if !siteID.IsSiteMarker() {
		return Interval{}, vgerrors.E(vgerrors.InternalInvariant, "not a site marker", nil)
	}
	return idx.markerInterval(siteID)
}

// AlleleSeparatorInterval returns the SA interval of all occurrences of
// the allele separator belonging to siteID.
func (idx *FMIndex) AlleleSeparatorInterval(siteID prg.Symbol) (Interval, error) {
	if !siteID.IsSiteMarker() {
		return Interval{}, vgerrors.E(vgerrors.InternalInvariant, "not a site marker", nil)
	}
	return idx.markerInterval(siteID.AlleleSeparator())
}

func (idx *FMIndex) markerInterval(m prg.Symbol) (Interval, error) {
	base := idx.C(m)
	n := len(idx.markerPositions[m])
	if n == 0 {
		return Interval{}, vgerrors.E(vgerrors.InternalInvariant, "marker not present in index", nil)
	}
	return Interval{Lo: base, Hi: base + n}, nil
}

// MarkerOccurrence describes one BWT position within an interval that holds
// a variant marker.
type MarkerOccurrence struct {
	// SAIndex is the position within the SA-sorted BWT array.
	SAIndex int
	// Marker is the symbol found there.
	Marker prg.Symbol
	// TextPos is the original text position this SA entry points at, i.e.
	// SA[SAIndex].
	TextPos int
}

// MarkersIn scans the BWT positions in [iv.Lo, iv.Hi) and returns every
// one that holds a variant marker, testing each position's bit in the
// marker bitmap.
func (idx *FMIndex) MarkersIn(iv Interval) []MarkerOccurrence {
	var out []MarkerOccurrence
	for i := iv.Lo; i < iv.Hi; i++ {
		word := idx.markerBitmap[i/64]
		if word&(1<<uint(i%64)) == 0 {
			continue
		}
		out = append(out, MarkerOccurrence{
			SAIndex: i,
			Marker:  idx.bwt[i],
			TextPos: idx.SA(i),
		})
	}
	return out
}

// largeTextThreshold is the point above which the suffix array is backed
// by an mmap'd, hugepage-advised region instead of a plain Go slice (see
// mmap.go).
const largeTextThreshold = 1 << 20

func buildSuffixArray(text []prg.Symbol) []int32 {
	n := len(text)
	var sa []int32
	if n >= largeTextThreshold {
		sa = mmapInt32Slice(n)
	} else {
		sa = make([]int32, n)
	}
	rank := make([]int, n)
	tmp := make([]int, n)
	for i := 0; i < n; i++ {
		sa[i] = int32(i)
		rank[i] = int(text[i])
	}
	for k := 1; ; k *= 2 {
		key := func(i, shift int) int {
			if i+shift < n {
				return rank[i+shift]
			}
			return -1
		}
		sort.Slice(sa, func(a, b int) bool {
			i, j := int(sa[a]), int(sa[b])
			if rank[i] != rank[j] {
				return rank[i] < rank[j]
			}
			return key(i, k) < key(j, k)
		})
		tmp[sa[0]] = 0
		for i := 1; i < n; i++ {
			prev, cur := sa[i-1], sa[i]
			same := rank[prev] == rank[cur] && key(int(prev), k) == key(int(cur), k)
			if same {
				tmp[cur] = tmp[prev]
			} else {
				tmp[cur] = tmp[prev] + 1
			}
		}
		copy(rank, tmp)
		if rank[sa[n-1]] == n-1 {
			break
		}
	}
	return sa
}
