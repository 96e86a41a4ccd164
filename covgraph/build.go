package covgraph

import (
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/vgerrors"
	"gonum.org/v1/gonum/graph/simple"
)

// frame is one entry in the builder's open-bubble stack.
type frame struct {
	siteID prg.Symbol
	start  NodeID
	// alleleIndex is the 0-based allele currently being walked.
	alleleIndex int
	// chainTail is the last node appended to the current allele's chain,
	// or 0 if the current allele has had no content yet.
	chainTail NodeID
	// firsts[k] is the first content node of allele k's chain, or 0 if
	// allele k is empty. Recorded rather than linked immediately so that
	// the bubble-start node's edges can be emitted in ascending allele
	// order regardless of which alleles turn out empty.
	firsts []NodeID
	// lasts[k] is the last content node of allele k's chain, or 0 if
	// empty.
	lasts []NodeID
	// parentNonRef is true if this frame sits inside a non-reference
	// allele of an ancestor, in which case its own allele-0 content still
	// doesn't advance the global REF counter.
	parentNonRef bool
	// incremented records whether this frame has contributed +1 to the
	// builder's nonRefDepth (at most once: either at open, if
	// parentNonRef, or at the first splitAllele past allele 0).
	// Decremented exactly once at close if set.
	incremented bool
}

// builder constructs a Graph from a validated PRG in one left-to-right
// pass, maintaining a stack of open bubbles.
type builder struct {
	g           *Graph
	stack       []frame
	posCursor   int // 1-based REF coordinate, advances only on-path.
	nonRefDepth int

	// accumulator for the node currently being built: its site/allele
	// context and the bases collected so far.
	curSite   prg.Symbol
	curAllele int
	curSeq    []prg.Symbol
	curStart  int // posCursor value when curSeq's first base was appended.
	haveCur   bool

	outsideTail NodeID // last top-level (site_ID==0) node, or 0.
}

// Build constructs the coverage graph for a validated PRG.
func Build(p *prg.PRG) (*Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := &builder{
		g: &Graph{
			structural: simple.NewDirectedGraph(),
			BubbleMap:  map[prg.Symbol]Bubble{},
			ParentMap:  map[prg.Symbol]ParentInfo{},
			ChildMap:   map[prg.Symbol]map[int][]prg.Symbol{},
		},
		posCursor: 1,
	}
	b.g.RandomAccess = make([]RAEntry, len(p.Symbols))

	for i, s := range p.Symbols {
		switch {
		case s.IsBase():
			b.consumeBase(s, i)
		case s.IsSiteMarker():
			if b.topIsSameSite(s) {
				b.closeSite(s, i)
			} else {
				b.openSite(s, i)
			}
		case s.IsAlleleSeparator():
			b.splitAllele(s, i)
		default:
			return nil, vgerrors.E(vgerrors.InternalInvariant, "unreachable symbol class", nil)
		}
	}
	if len(b.stack) != 0 {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "unclosed site at end of PRG", nil)
	}
	b.finishAccumulator(len(p.Symbols))
	return b.g, nil
}

func (b *builder) topIsSameSite(s prg.Symbol) bool {
	return len(b.stack) > 0 && b.stack[len(b.stack)-1].siteID == s
}

func (b *builder) onRefPath() bool { return b.nonRefDepth == 0 }

// newNode allocates a fresh arena node and registers it structurally.
func (b *builder) newNode(site prg.Symbol, allele int, pos int) NodeID {
	b.g.nodes = append(b.g.nodes, Node{SiteID: site, AlleleID: allele, Position: pos})
	id := NodeID(len(b.g.nodes))
	b.g.addStructuralNode(id)
	return id
}

func (b *builder) link(from, to NodeID) {
	b.g.Node(from).Edges = append(b.g.Node(from).Edges, to)
	b.g.addStructuralEdge(from, to)
}

// finishAccumulator flushes the in-progress run of bases (if any) into a
// concrete node and wires it into the current chain.
//
// endOffset is the PRG offset one past the run, used to backfill
// random_access for every base in the run.
func (b *builder) finishAccumulator(endOffset int) {
	if !b.haveCur {
		return
	}
	node := b.newNode(b.curSite, b.curAllele, b.curStart)
	nd := b.g.Node(node)
	nd.Sequence = b.curSeq
	if b.curSite != 0 {
		nd.Coverage = make([]uint32, len(b.curSeq))
	}
	b.appendToChain(node)
	for k := range b.curSeq {
		offset := endOffset - len(b.curSeq) + k
		b.g.RandomAccess[offset] = RAEntry{Node: node, Offset: k, JumpAllele: -1}
	}
	b.haveCur = false
	b.curSeq = nil
}

// appendToChain wires node as the continuation of the current allele chain
// (top-of-stack frame), or as the continuation of the top-level
// outside-any-bubble chain. The edge out of a bubble-start node is
// deferred to closeSite so all per-allele entry edges can be emitted in
// ascending allele order.
func (b *builder) appendToChain(node NodeID) {
	if len(b.stack) == 0 {
		if b.outsideTail != 0 {
			b.link(b.outsideTail, node)
		}
		b.outsideTail = node
		return
	}
	f := &b.stack[len(b.stack)-1]
	if f.chainTail == 0 {
		f.firsts[f.alleleIndex] = node
	} else {
		b.link(f.chainTail, node)
	}
	f.chainTail = node
}

// consumeBase extends (or starts) the accumulator for the current
// site/allele context.
func (b *builder) consumeBase(s prg.Symbol, offset int) {
	site, allele := prg.Symbol(0), 0
	if len(b.stack) > 0 {
		f := &b.stack[len(b.stack)-1]
		site, allele = f.siteID, f.alleleIndex
	}
	if !b.haveCur || b.curSite != site || b.curAllele != allele {
		b.finishAccumulator(offset)
		b.haveCur = true
		b.curSite, b.curAllele = site, allele
		b.curStart = b.posCursor
	}
	b.curSeq = append(b.curSeq, s)
	if b.onRefPath() {
		b.posCursor++
	}
}

// openSite handles an odd-marker push: flush the accumulator, allocate a
// bubble-start sentinel, and push a new frame.
func (b *builder) openSite(s prg.Symbol, offset int) {
	b.finishAccumulator(offset)

	start := b.newNode(s, -1, b.posCursor)
	b.appendToChain(start)

	f := frame{
		siteID: s,
		start:  start,
		firsts: []NodeID{0},
		lasts:  []NodeID{0},
	}
	if len(b.stack) > 0 {
		parent := &b.stack[len(b.stack)-1]
		b.g.ParentMap[s] = ParentInfo{ParentSite: parent.siteID, ParentHaplogroup: parent.alleleIndex}
		if b.g.ChildMap[parent.siteID] == nil {
			b.g.ChildMap[parent.siteID] = map[int][]prg.Symbol{}
		}
		b.g.ChildMap[parent.siteID][parent.alleleIndex] = append(b.g.ChildMap[parent.siteID][parent.alleleIndex], s)
		if parent.alleleIndex != 0 || parent.parentNonRef {
			f.parentNonRef = true
		}
	}
	if f.parentNonRef {
		b.nonRefDepth++
		f.incremented = true
	}
	b.stack = append(b.stack, f)

	b.g.RandomAccess[offset] = RAEntry{Node: start, Offset: 0, JumpSite: s, JumpAllele: 0}
}

// splitAllele handles an even separator: close out the current allele
// chain and begin the next one.
func (b *builder) splitAllele(s prg.Symbol, offset int) {
	b.finishAccumulator(offset)

	f := &b.stack[len(b.stack)-1]
	f.lasts[f.alleleIndex] = f.chainTail
	wasRefAllele := f.alleleIndex == 0 && !f.parentNonRef
	f.alleleIndex++
	f.chainTail = 0
	f.firsts = append(f.firsts, 0)
	f.lasts = append(f.lasts, 0)
	if wasRefAllele {
		// Leaving the reference allele of this bubble: every subsequent
		// allele is off the REF path regardless of ancestors.
		b.nonRefDepth++
		f.incremented = true
	}

	b.g.RandomAccess[offset] = RAEntry{Node: f.start, Offset: 0, JumpSite: f.siteID, JumpAllele: f.alleleIndex}
}

// closeSite handles an odd-marker pop: wire every allele's entry edge out
// of the bubble-start node (in ascending allele order) and every allele's
// exit edge into a shared bubble-end sentinel, pop the frame, and record
// the bubble (in innermost-first BubbleOrder position).
func (b *builder) closeSite(s prg.Symbol, offset int) {
	b.finishAccumulator(offset)

	f := b.stack[len(b.stack)-1]
	f.lasts[f.alleleIndex] = f.chainTail
	b.stack = b.stack[:len(b.stack)-1]

	end := b.newNode(s, -1, b.posCursor)
	for _, first := range f.firsts {
		if first == 0 {
			// Empty allele: the single edge start->end serves as both
			// its entry and exit edge.
			b.link(f.start, end)
			continue
		}
		b.link(f.start, first)
	}
	for _, last := range f.lasts {
		if last != 0 {
			b.link(last, end)
		}
	}

	// The bubble-end sentinel becomes the tail of the enclosing chain
	// without an edge from the bubble-start node, which keeps exactly one
	// edge per allele.
	if len(b.stack) == 0 {
		b.outsideTail = end
	} else {
		b.stack[len(b.stack)-1].chainTail = end
	}

	if f.incremented {
		b.nonRefDepth--
	}

	b.g.BubbleMap[s] = Bubble{Start: f.start, End: end}
	b.g.BubbleOrder = append(b.g.BubbleOrder, s)

	b.g.RandomAccess[offset] = RAEntry{Node: end, Offset: 0, JumpAllele: -1}
}
