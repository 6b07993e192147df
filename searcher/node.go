package searcher

import (
	"fmt"
	"math"
)

// IdxRange is a contiguous, half-open range of node indices in the
// arena. Children of a node always form one such range, ordered by
// non-increasing prior probability.
type IdxRange struct {
	Start, End uint32
}

func (r IdxRange) Empty() bool {
	return r.Start == r.End
}

func (r IdxRange) Len() int {
	return int(r.End - r.Start)
}

func (r IdxRange) Get(i int) int {
	if i < 0 || i >= r.Len() {
		panic(fmt.Sprintf("child index %d out of range [0, %d)", i, r.Len()))
	}
	return int(r.Start) + i
}

// Node is one element of a tree's arena. Parent/child links are arena
// indices, never pointers, so subtrees can be pruned by dropping index
// ranges.
type Node struct {
	// Parent is the arena index of the parent, -1 for the root.
	Parent int32
	// LastMoveIndex is the action-space index of the move that produced
	// this node, -1 for the root.
	LastMoveIndex int32
	// NetPolicy is the prior probability, normalized only within the
	// stored siblings.
	NetPolicy float32
	// NetValues is the raw network evaluation, set once at expansion.
	NetValues *Values
	// Visits counts completed backpropagations through this node.
	Visits uint64
	// SumValues accumulates backpropagated values.
	SumValues Values
	// Children is the arena range of stored children, empty until the
	// node is expanded.
	Children IdxRange
	// LatentState is the evaluator-resident state owned by this node.
	// Only used by latent trees, nil otherwise.
	LatentState State
}

func newNode(parent, lastMoveIndex int32, policy float32) Node {
	return Node{
		Parent:        parent,
		LastMoveIndex: lastMoveIndex,
		NetPolicy:     policy,
	}
}

func (n *Node) expanded() bool {
	return n.NetValues != nil
}

// values returns the running average of the backpropagated values.
func (n *Node) values() Values {
	if n.Visits == 0 {
		panic("node values requested before any visit")
	}
	return n.SumValues.Div(n.Visits)
}

// UctWeights are the selection-score weights. MovesLeft of zero
// disables the moves-left term entirely.
type UctWeights struct {
	Exploration        float64
	MovesLeft          float64
	MovesLeftSharpness float64
}

func DefaultUctWeights() UctWeights {
	return UctWeights{
		Exploration:        2.0,
		MovesLeft:          0.0,
		MovesLeftSharpness: 0.5,
	}
}

// FpuMode decides the value assumed for unvisited children during
// selection.
type fpuKind uint8

const (
	fpuParent fpuKind = iota
	fpuRelative
	fpuFixed
)

type FpuMode struct {
	kind   fpuKind
	offset float32
}

// FpuParent uses the running parent baseline unchanged.
var FpuParent = FpuMode{kind: fpuParent}

// FpuRelative uses the parent baseline minus a fixed offset.
func FpuRelative(offset float32) FpuMode {
	return FpuMode{kind: fpuRelative, offset: offset}
}

// FpuFixed ignores the baseline and uses a constant value.
func FpuFixed(value float32) FpuMode {
	return FpuMode{kind: fpuFixed, offset: value}
}

func (m FpuMode) Select(parent float32) float32 {
	switch m.kind {
	case fpuParent:
		return parent
	case fpuRelative:
		return parent - m.offset
	case fpuFixed:
		return m.offset
	default:
		panic(fmt.Sprintf("unknown fpu mode %d", m.kind))
	}
}

// ParseFpuMode converts a config string ("parent", "relative",
// "fixed") plus offset into an FpuMode.
func ParseFpuMode(kind string, offset float32) (FpuMode, error) {
	switch kind {
	case "", "parent":
		return FpuParent, nil
	case "relative":
		return FpuRelative(offset), nil
	case "fixed":
		return FpuFixed(offset), nil
	default:
		return FpuMode{}, fmt.Errorf("unknown fpu mode %q", kind)
	}
}

// uct is the selection score of this node as a child of a parent with
// the given visit count. Unvisited children score with the fpu value
// instead of their own average. The optional moves-left term prefers
// shorter lines when ahead and longer ones when behind.
func (n *Node) uct(parentVisits uint64, fpu float32, parentMovesLeft float32, w UctWeights) float64 {
	var q, movesLeft float64
	if n.Visits == 0 {
		q = float64(fpu)
	} else {
		v := n.values()
		q = float64(v.Value())
		movesLeft = float64(v.MovesLeft)
	}

	u := float64(n.NetPolicy) * math.Sqrt(float64(parentVisits)) / float64(1+n.Visits)
	total := q + w.Exploration*u

	if w.MovesLeft != 0 && n.Visits > 0 {
		delta := movesLeft - float64(parentMovesLeft)
		total += w.MovesLeft * -q * math.Tanh(w.MovesLeftSharpness*delta)
	}
	return total
}
