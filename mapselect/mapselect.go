// Package mapselect dispatches a read's terminal search states into
// equivalence classes and uniformly selects one mapping instance among
// them. Two states are equivalent when they touch the same set of
// level-0 (un-nested) sites. The class's unique loci (every (site,
// allele) any of its states is compatible with, nested included) drive
// the allele-sum and grouped-allele-count recorders, while the class's
// states themselves drive per-base recording.
package mapselect

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/search"
)

// Selection is the outcome of selecting among a read's mapping instances.
// Empty (no states) when a non-variant mapping was drawn: nothing gets
// recorded.
type Selection struct {
	// States are the navigational search states of the selected
	// equivalence class, used for per-base coverage recording.
	States []search.State
	// UniqueLoci is the class's deduplicated locus set, sorted by (site,
	// allele), used for allele-sum and grouped-allele-count recording.
	UniqueLoci []search.Locus
}

// ReadRNG derives the per-read random stream from the run seed and the
// read's bases. Hashing the read rather than sharing one generator keeps
// runs with the same seed byte-identical regardless of how reads
// interleave across worker threads.
func ReadRNG(seed uint64, read []byte) *rand.Rand {
	h := farm.Hash64WithSeed(read, seed)
	return rand.New(rand.NewSource(int64(h)))
}

type class struct {
	states []search.State
	loci   map[search.Locus]bool
}

// Select groups states into level-0 equivalence classes and draws uniformly
// across every non-variant mapping instance plus every class.
func Select(sr *search.Searcher, states []search.State, rng *rand.Rand) Selection {
	var nNovar int
	classes := map[string]*class{}
	for i := range states {
		loci := stateLoci(sr, &states[i])
		if len(loci) == 0 {
			nNovar++
			continue
		}
		key := signatureKey(sr, loci)
		c := classes[key]
		if c == nil {
			c = &class{loci: map[search.Locus]bool{}}
			classes[key] = c
		}
		c.states = append(c.states, states[i])
		for l := range loci {
			c.loci[l] = true
		}
	}
	if nNovar+len(classes) == 0 {
		return Selection{}
	}
	draw := rng.Intn(nNovar + len(classes))
	if draw < nNovar {
		return Selection{}
	}
	keys := make([]string, 0, len(classes))
	for k := range classes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c := classes[keys[draw-nNovar]]

	selected := c.states
	if len(selected) == 1 && selected[0].Encapsulated && selected[0].Interval.Size() > 1 {
		// The read maps several times into the same (site, allele): one
		// instance is enough, drawn uniformly.
		st := selected[0]
		row := st.Interval.Lo + rng.Intn(st.Interval.Size())
		st.Interval = fmindex.Interval{Lo: row, Hi: row + 1}
		selected = []search.State{st}
	}
	return Selection{States: selected, UniqueLoci: sortedLoci(c.loci)}
}

// stateLoci collects every locus a state is compatible with, including the
// ancestors of each nested locus up to level 0. An unresolved traversing
// allele contributes one locus per allele its SA rows fall in.
func stateLoci(sr *search.Searcher, st *search.State) map[search.Locus]bool {
	loci := map[search.Locus]bool{}
	add := func(l search.Locus) {
		loci[l] = true
		for _, anc := range sr.AncestorChain(l.Site) {
			loci[anc] = true
		}
	}
	for _, l := range st.Traversed {
		add(l)
	}
	for _, l := range st.Traversing {
		if l.Allele != search.AlleleUnknown {
			add(l)
			continue
		}
		for row := st.Interval.Lo; row < st.Interval.Hi; row++ {
			if a, ok := sr.AlleleWithin(sr.Index().SA(row), l.Site); ok {
				add(search.Locus{Site: l.Site, Allele: a})
			}
		}
	}
	return loci
}

// signatureKey renders the sorted set of level-0 site IDs the loci touch.
func signatureKey(sr *search.Searcher, loci map[search.Locus]bool) string {
	seen := map[prg.Symbol]bool{}
	var ids []int
	for l := range loci {
		if top := sr.Level0Site(l.Site); !seen[top] {
			seen[top] = true
			ids = append(ids, int(top))
		}
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func sortedLoci(set map[search.Locus]bool) []search.Locus {
	out := make([]search.Locus, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Site != out[j].Site {
			return out[i].Site < out[j].Site
		}
		return out[i].Allele < out[j].Allele
	})
	return out
}
