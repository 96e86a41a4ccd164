package search

import (
	"github.com/grailbio/vgraph/fmindex"
)

// SplitEncapsulated rewrites path-less states so that every mapping has a
// well-defined site path.
// A path-less state's SA rows are classified by the innermost (site,
// allele) their text position falls in: rows outside every bubble become
// one single-row state each, and runs of consecutive rows inside the same
// allele collapse into one state carrying that locus, flagged Encapsulated
// so the mapping selector may later sample a single instance from it.
// States that already carry a path pass through untouched.
func (s *Searcher) SplitEncapsulated(states []State) []State {
	var out []State
	for i := range states {
		st := &states[i]
		if st.HasPath() {
			out = append(out, *st)
			continue
		}
		out = s.splitOne(st, out)
	}
	return out
}

func (s *Searcher) splitOne(st *State, out []State) []State {
	var (
		pending  State
		havePend bool
	)
	flush := func() {
		if havePend {
			out = append(out, pending)
			havePend = false
		}
	}
	for row := st.Interval.Lo; row < st.Interval.Hi; row++ {
		chain := s.LocusChain(s.idx.SA(row))
		if len(chain) == 0 {
			flush()
			out = append(out, State{Interval: fmindex.Interval{Lo: row, Hi: row + 1}})
			continue
		}
		locus := chain[0]
		if havePend && pending.Traversed[0] == locus && pending.Interval.Hi == row {
			// Same allele, lexicographically adjacent row: widen instead
			// of forking, for memory economy.
			pending.Interval.Hi = row + 1
			continue
		}
		flush()
		pending = State{
			Interval:     fmindex.Interval{Lo: row, Hi: row + 1},
			Traversed:    []Locus{locus},
			Encapsulated: true,
		}
		havePend = true
	}
	flush()
	return out
}
