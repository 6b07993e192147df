package searcher

import (
	"fmt"
	"math"
	"sort"

	"selfzero/game"
)

// State is an opaque handle to evaluator-resident recurrent state. A
// handle is owned by exactly one node at a time; the owning tree calls
// Release exactly once when the node becomes unreachable. Expand
// requests borrow the parent's handle without taking ownership.
type State interface {
	Release()
}

// LatentTree is the recurrent-model variant of Tree: leaves carry an
// owned state handle instead of a board. The root board is used only
// to seed the first evaluation and to enumerate root moves.
type LatentTree struct {
	treeCore
	rootBoard  game.Board
	drawDepth  int
	policySize int
}

// NewLatentTree builds an empty latent tree rooted at the given board.
func NewLatentTree(board game.Board, drawDepth int) *LatentTree {
	if _, over := board.Outcome(); over {
		panic("cannot build a search tree on a finished game")
	}
	t := &LatentTree{
		treeCore:   treeCore{current: -1},
		rootBoard:  board.Clone(),
		drawDepth:  drawDepth,
		policySize: board.PolicySize(),
	}
	t.nodes = append(t.nodes, newNode(-1, -1, 1))
	return t
}

func (t *LatentTree) RootBoard() game.Board {
	return t.rootBoard.Clone()
}

// LatentRequest asks the evaluator either to encode a board into an
// initial state (root requests, Board set) or to advance a previously
// produced state by one move (expand requests, State and MoveIndex
// set). The state stays owned by its node.
type LatentRequest struct {
	Node      int
	Board     game.Board
	State     State
	MoveIndex int
}

func (r LatentRequest) IsRoot() bool {
	return r.Board != nil
}

// Respond pairs this request with a new state handle and evaluation.
// Ownership of the state passes to the tree on Apply.
func (r LatentRequest) Respond(state State, eval Evaluation) LatentResponse {
	return LatentResponse{Node: r.Node, State: state, Eval: eval}
}

// LatentResponse carries a new state handle plus evaluation back to the
// node that requested it.
type LatentResponse struct {
	Node  int
	State State
	Eval  Evaluation
}

// Gather runs the selection phase, see Tree.Gather. The latent variant
// never detects terminal positions; only the draw-depth cutoff bounds
// descent.
func (t *LatentTree) Gather(w UctWeights, fpu FpuMode) *LatentRequest {
	if t.current != -1 {
		panic(fmt.Sprintf("gather: request for node %d is already outstanding", t.current))
	}

	if !t.nodes[0].expanded() {
		t.current = 0
		return &LatentRequest{Node: 0, Board: t.rootBoard.Clone(), MoveIndex: -1}
	}

	cur := 0
	baseline := DrawValues(0)
	depth := 0

	for {
		if depth >= t.drawDepth {
			propagate(t.nodes, cur, DrawValues(0))
			return nil
		}

		if !t.nodes[cur].expanded() {
			parent := int(t.nodes[cur].Parent)
			t.current = cur
			return &LatentRequest{
				Node:      cur,
				State:     t.nodes[parent].LatentState,
				MoveIndex: int(t.nodes[cur].LastMoveIndex),
			}
		}

		if t.nodes[cur].Visits > 0 {
			baseline = t.nodes[cur].values()
		}
		baseline = baseline.Flip()

		cur = selectChild(t.nodes, cur, baseline, fpu, w)
		depth++
	}
}

// Apply expands the requested node, taking ownership of the returned
// state handle, and propagates the values to the root. The root stores
// one child per legal root move; deeper nodes store the top topMoves
// action indices by logit, legality unknown by construction.
func (t *LatentTree) Apply(topMoves int, resp LatentResponse) {
	if topMoves <= 0 {
		panic("top moves must be positive")
	}
	if t.current != resp.Node {
		panic(fmt.Sprintf("apply: response for node %d, outstanding request is %d", resp.Node, t.current))
	}
	t.current = -1

	policy := resp.Eval.Policy
	if len(policy) != t.policySize {
		panic(fmt.Sprintf("policy length %d does not match action space %d", len(policy), t.policySize))
	}

	var entries []childEntry
	if resp.Node == 0 {
		legal := t.rootBoard.LegalMoves()
		entries = make([]childEntry, 0, len(legal))
		for _, mv := range legal {
			entries = append(entries, childEntry{moveIndex: mv, logit: policy[mv]})
		}
	} else {
		top := topKIndices(policy, topMoves)
		entries = make([]childEntry, 0, len(top))
		for _, mv := range top {
			entries = append(entries, childEntry{moveIndex: mv, logit: policy[mv]})
		}
	}

	children := createChildren(&t.nodes, resp.Node, entries)
	node := &t.nodes[resp.Node]
	values := resp.Eval.Values
	node.NetValues = &values
	node.Children = children
	node.LatentState = resp.State

	propagate(t.nodes, resp.Node, values)
}

// Release frees every state handle owned by the tree. The tree must not
// be used afterwards.
func (t *LatentTree) Release() {
	if t.current != -1 {
		panic("cannot release a tree with an outstanding request")
	}
	releaseStates(t.nodes, nil)
}

// KeepMove reroots the tree at the given root move, releasing the state
// handles of every discarded node. Returns false when the subtree
// cannot be reused; the caller then releases the whole tree and starts
// fresh.
func (t *LatentTree) KeepMove(moveIndex int) (*LatentTree, bool) {
	if t.current != -1 {
		panic("cannot reroot a tree with an outstanding request")
	}
	child := t.findRootChild(moveIndex)
	if child < 0 || !t.nodes[child].expanded() {
		return nil, false
	}
	board := t.rootBoard.Clone()
	board.Play(moveIndex)
	if _, over := board.Outcome(); over {
		return nil, false
	}
	nodes, kept := copySubtree(t.nodes, child)
	releaseStates(t.nodes, kept)
	return &LatentTree{
		treeCore:   treeCore{nodes: nodes, current: -1},
		rootBoard:  board,
		drawDepth:  t.drawDepth,
		policySize: t.policySize,
	}, true
}

// releaseStates releases the handles of all nodes not marked as kept
// and clears every handle so no release can happen twice. A nil kept
// slice releases everything.
func releaseStates(nodes []Node, kept []bool) {
	for i := range nodes {
		s := nodes[i].LatentState
		if s != nil && (kept == nil || !kept[i]) {
			s.Release()
		}
		nodes[i].LatentState = nil
	}
}

// topKIndices returns the indices of the k highest values, sorted from
// high to low. NaN values sort above everything else so they do not go
// unnoticed.
func topKIndices(values []float32, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	greater := func(a, b float32) bool {
		if math.IsNaN(float64(a)) {
			return !math.IsNaN(float64(b))
		}
		if math.IsNaN(float64(b)) {
			return false
		}
		return a > b
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return greater(values[idx[a]], values[idx[b]])
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
