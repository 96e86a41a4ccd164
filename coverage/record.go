package coverage

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/grailbio/vgraph/mapselect"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/search"
)

// Record updates all three coverage structures from one selected mapping.
// No-op for an empty selection (a non-variant mapping instance was drawn).
func (c *Coverage) Record(sr *search.Searcher, sel mapselect.Selection, readLen int) {
	if len(sel.States) == 0 {
		return
	}
	c.recordAlleleSum(sel.UniqueLoci)
	c.recordGrouped(sel.UniqueLoci)
	for i := range sel.States {
		c.recordPerBase(sr, &sel.States[i], readLen)
	}
}

func (c *Coverage) recordAlleleSum(loci []search.Locus) {
	for _, l := range loci {
		atomic.AddInt64(&c.alleleSum[l.Site.Index()][l.Allele], 1)
	}
}

func (c *Coverage) recordGrouped(loci []search.Locus) {
	// loci arrive sorted by (site, allele), so alleles of one site are
	// already consecutive and in order.
	for i := 0; i < len(loci); {
		j := i
		for j < len(loci) && loci[j].Site == loci[i].Site {
			j++
		}
		alleles := make([]int, 0, j-i)
		for _, l := range loci[i:j] {
			alleles = append(alleles, l.Allele)
		}
		c.addGroup(loci[i].Site.Index(), alleles)
		i = j
	}
}

func (c *Coverage) addGroup(siteIdx int, alleles []int) {
	key := GroupKey(alleles)
	sg := c.grouped[siteIdx]
	sg.mu.Lock()
	if gc := sg.counts[key]; gc != nil {
		gc.Count++
	} else {
		sg.counts[key] = &GroupCount{Alleles: alleles, Count: 1}
	}
	sg.mu.Unlock()
}

// recordPerBase walks the coverage graph under each SA row of the state
// for readLen bases, incrementing the per-base counter of every base
// covered. The walk follows the linearised text and consults the state's
// site path at each opening marker to pick the traversed allele; separator
// and closing markers jump past the site's 3' boundary.
func (c *Coverage) recordPerBase(sr *search.Searcher, st *search.State, readLen int) {
	path := map[prg.Symbol]int{}
	for _, l := range st.Traversed {
		path[l.Site] = l.Allele
	}
	for _, l := range st.Traversing {
		if l.Allele != search.AlleleUnknown {
			path[l.Site] = l.Allele
		}
	}
	idx := sr.Index()
	for row := st.Interval.Lo; row < st.Interval.Hi; row++ {
		pos := idx.SA(row)
		remaining := readLen
		for remaining > 0 && pos < idx.Len()-1 {
			sym := idx.Text(pos)
			if sym.IsBase() {
				entry := c.graph.RandomAccess[pos]
				node := c.graph.Node(entry.Node)
				if node.SiteID != 0 {
					saturatingIncr(&node.Coverage[entry.Offset])
				}
				remaining--
				pos++
				continue
			}
			if sym.IsSiteMarker() && pos == sr.SiteOpenPos(sym) {
				allele, ok := path[sym]
				if !ok {
					// The walk reached a site the state never crossed;
					// nothing past this point was matched by the read.
					break
				}
				pos = sr.AlleleContentStart(sym, allele)
				continue
			}
			// Separator or closing marker: the current allele is done.
			pos = sr.SiteExitPos(sym.SiteID())
		}
	}
}

// saturatingIncr adds one to a per-base counter, capping at the uint16
// maximum. Storage is uint32 because Go has no 16-bit atomics; callers
// that want unsaturated counts must widen upstream.
func saturatingIncr(counter *uint32) {
	for {
		old := atomic.LoadUint32(counter)
		if old >= math.MaxUint16 {
			return
		}
		if atomic.CompareAndSwapUint32(counter, old, old+1) {
			return
		}
	}
}

// GroupIDs assigns a dense, deterministic ID to every distinct allele
// group across all sites, for the grouped-allele-counts JSON side table.
// Groups are ordered by their sorted allele tuple.
func (c *Coverage) GroupIDs() (ids map[string]int, groups [][]int) {
	keys := map[string][]int{}
	for _, sg := range c.grouped {
		sg.mu.Lock()
		for key, gc := range sg.counts {
			if _, ok := keys[key]; !ok {
				keys[key] = append([]int(nil), gc.Alleles...)
			}
		}
		sg.mu.Unlock()
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return lessInts(keys[sorted[i]], keys[sorted[j]]) })
	ids = make(map[string]int, len(sorted))
	groups = make([][]int, len(sorted))
	for i, k := range sorted {
		ids[k] = i
		groups[i] = keys[k]
	}
	return ids, groups
}

// GroupKey renders a group's sorted allele IDs the way the grouped map
// keys them.
func GroupKey(alleles []int) string {
	parts := make([]string, len(alleles))
	for i, a := range alleles {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, ",")
}
