// Package covgraph builds the coverage graph: a DAG
// of sequence nodes, grouped into per-site bubbles, with the auxiliary
// lookup tables the genotyper and allele extracter walk (bubble_map,
// parent_map, child_map, random_access).
//
// Nodes are addressed by a dense arena handle rather than a pointer, so
// the cyclic node/bubble-table references become plain integer lookups
// instead of intrusive shared pointers. The arena is additionally exposed
// as a gonum simple.DirectedGraph
// so --dump-graph can render it with graph/encoding/dot.
package covgraph

import (
	"github.com/grailbio/vgraph/prg"
	"gonum.org/v1/gonum/graph/simple"
)

// NodeID is an arena handle. The zero value never refers to a node
// constructed by Build (real nodes start at 1); use it as a sentinel for
// "no node".
type NodeID int64

// Node is one coverage-graph vertex: a maximal run of bases sharing the
// same site/allele context, or a zero-length bubble-boundary sentinel.
type Node struct {
	// Sequence is the run of bases this node covers, empty for
	// bubble-start/bubble-end sentinels.
	Sequence []prg.Symbol
	// SiteID is the enclosing site, 0 if outside every bubble.
	SiteID prg.Symbol
	// AlleleID is the 0-based allele index within SiteID that this node's
	// content belongs to. -1 for the bubble-start/bubble-end sentinels,
	// which belong to the site structurally but not to any one allele.
	AlleleID int
	// Position is the 1-based coordinate of Sequence's first base with
	// respect to the REF path (allele 1 of every enclosing site).
	Position int
	// Coverage holds one saturating counter per base of Sequence,
	// allocated only when SiteID != 0; outside bubbles nothing is
	// genotyped, so nothing is counted.
	Coverage []uint32
	// Edges are ordered successors: a bubble-start node has one edge per
	// allele, in ascending allele order; any other node has at most one
	// edge (chain continuation, or the edge into the bubble-end
	// sentinel).
	Edges []NodeID
}

// Bubble is the (start, end) sentinel pair for one site.
type Bubble struct {
	Start, End NodeID
}

// ParentInfo records where a child site is nested.
type ParentInfo struct {
	ParentSite       prg.Symbol
	ParentHaplogroup int
}

// RAEntry maps one PRG offset to its node and intra-node offset.
type RAEntry struct {
	Node     NodeID
	Offset   int
	JumpSite prg.Symbol
	// JumpAllele is the 0-based allele the BWT extension enters
	// immediately after a marker at this PRG offset; -1 when not
	// applicable (the offset isn't immediately after a marker, or the
	// marker is a bubble-end/close).
	JumpAllele int
}

// Graph is the built coverage graph plus its auxiliary tables.
type Graph struct {
	nodes []Node // nodes[id-1] backs NodeID id.

	// structural is the gonum-backed mirror of the edge relation, used by
	// the --dump-graph DOT export; Node.Edges remains the
	// allele-order-preserving source of truth algorithms traverse.
	structural *simple.DirectedGraph

	BubbleMap    map[prg.Symbol]Bubble
	ParentMap    map[prg.Symbol]ParentInfo
	ChildMap     map[prg.Symbol]map[int][]prg.Symbol
	RandomAccess []RAEntry
	// BubbleOrder lists every site ID in innermost-first order (children
	// before parents), the order the genotyper's recursion requires.
	BubbleOrder []prg.Symbol
}

// Node returns the node backing id.
func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id-1] }

// NumNodes returns the number of nodes in the arena.
func (g *Graph) NumNodes() int { return len(g.nodes) }

type gonumNode int64

func (n gonumNode) ID() int64 { return int64(n) }

func (g *Graph) addStructuralNode(id NodeID) {
	g.structural.AddNode(gonumNode(id))
}

func (g *Graph) addStructuralEdge(from, to NodeID) {
	g.structural.SetEdge(g.structural.NewEdge(gonumNode(from), gonumNode(to)))
}

// Structural exposes the gonum-backed graph for the --dump-graph DOT
// export path (cmd/vgraph).
func (g *Graph) Structural() *simple.DirectedGraph { return g.structural }
