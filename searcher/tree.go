package searcher

import (
	"fmt"
	"math"
	"sort"

	"selfzero/game"
)

// treeCore is the node arena shared by both tree variants, with the
// accessors that only depend on node statistics.
type treeCore struct {
	nodes []Node
	// current is the node index of the outstanding request, -1 if none.
	current int
}

func (t *treeCore) RootVisits() uint64 {
	return t.nodes[0].Visits
}

func (t *treeCore) Len() int {
	return len(t.nodes)
}

func (t *treeCore) RootChildren() IdxRange {
	return t.nodes[0].Children
}

// ChildMove returns the action-space move index of the i-th stored
// root child.
func (t *treeCore) ChildMove(i int) int {
	return int(t.nodes[t.nodes[0].Children.Get(i)].LastMoveIndex)
}

// ChildVisits returns the visit count of the i-th stored root child.
func (t *treeCore) ChildVisits(i int) uint64 {
	return t.nodes[t.nodes[0].Children.Get(i)].Visits
}

// Eval returns the search result so far: the root's average values,
// flipped to the root player's perspective, and the visit distribution
// over the stored root children. Stored node values are always from
// the parent's perspective, hence the flip.
func (t *treeCore) Eval() Evaluation {
	root := &t.nodes[0]
	if !root.expanded() {
		panic("tree evaluation requested before the root was expanded")
	}
	policy := make([]float32, root.Children.Len())
	var total uint64
	for i := range policy {
		total += t.nodes[root.Children.Get(i)].Visits
	}
	for i := range policy {
		if total == 0 {
			policy[i] = 1 / float32(len(policy))
		} else {
			policy[i] = float32(t.nodes[root.Children.Get(i)].Visits) / float32(total)
		}
	}
	return Evaluation{Values: root.values().Flip(), Policy: policy}
}

// NetRootEvaluation returns the raw network evaluation of the root: the
// values snapshot taken at expansion and the stored children's priors.
func (t *treeCore) NetRootEvaluation() Evaluation {
	root := &t.nodes[0]
	if !root.expanded() {
		panic("net root evaluation requested before the root was expanded")
	}
	policy := make([]float32, root.Children.Len())
	for i := range policy {
		policy[i] = t.nodes[root.Children.Get(i)].NetPolicy
	}
	return Evaluation{Values: *root.NetValues, Policy: policy}
}

// BestMoveIndex returns the move of the most-visited root child. Ties
// resolve to the lowest child index, which is the highest prior since
// children are prior-sorted.
func (t *treeCore) BestMoveIndex() int {
	root := &t.nodes[0]
	if !root.expanded() {
		panic("best move requested before the root was expanded")
	}
	best := root.Children.Get(0)
	for i := 1; i < root.Children.Len(); i++ {
		ci := root.Children.Get(i)
		if t.nodes[ci].Visits > t.nodes[best].Visits {
			best = ci
		}
	}
	return int(t.nodes[best].LastMoveIndex)
}

// PerturbRootPriors mixes noise into the stored root children's priors
// in place: p' = (1-eps)*p + eps*noise.
func (t *treeCore) PerturbRootPriors(eps float32, noise []float32) {
	root := &t.nodes[0]
	if !root.expanded() {
		panic("cannot perturb priors before the root is expanded")
	}
	if len(noise) != root.Children.Len() {
		panic(fmt.Sprintf("noise length %d does not match %d root children", len(noise), root.Children.Len()))
	}
	for i := 0; i < root.Children.Len(); i++ {
		p := &t.nodes[root.Children.Get(i)].NetPolicy
		*p = (1-eps)*(*p) + eps*noise[i]
	}
}

func (t *treeCore) findRootChild(moveIndex int) int {
	root := &t.nodes[0]
	if !root.expanded() {
		return -1
	}
	for i := 0; i < root.Children.Len(); i++ {
		ci := root.Children.Get(i)
		if int(t.nodes[ci].LastMoveIndex) == moveIndex {
			return ci
		}
	}
	return -1
}

// Tree is a search tree over a single game position, evaluating boards
// directly. The arena owns every node; at most one evaluation request
// may be outstanding at any time.
type Tree struct {
	treeCore
	rootBoard game.Board
	drawDepth int
}

// NewTree builds an empty tree rooted at the given board. The board
// must not be finished. Search depth is bounded by drawDepth: lines
// longer than that are scored as draws without an evaluator call.
func NewTree(board game.Board, drawDepth int) *Tree {
	if _, over := board.Outcome(); over {
		panic("cannot build a search tree on a finished game")
	}
	t := &Tree{
		treeCore:  treeCore{current: -1},
		rootBoard: board.Clone(),
		drawDepth: drawDepth,
	}
	t.nodes = append(t.nodes, newNode(-1, -1, 1))
	return t
}

func (t *Tree) RootBoard() game.Board {
	return t.rootBoard.Clone()
}

// KeepMove reroots the tree at the given root move, discarding all
// sibling subtrees. Returns false when the subtree cannot be reused
// (move not stored, child unexpanded, or resulting position finished),
// in which case the caller should start a fresh tree.
func (t *Tree) KeepMove(moveIndex int) (*Tree, bool) {
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
	nodes, _ := copySubtree(t.nodes, child)
	return &Tree{
		treeCore:  treeCore{nodes: nodes, current: -1},
		rootBoard: board,
		drawDepth: t.drawDepth,
	}, true
}

// copySubtree copies the subtree rooted at from into a fresh arena,
// breadth-first so every child range stays contiguous. The second
// return value marks which old indices were kept.
func copySubtree(nodes []Node, from int) ([]Node, []bool) {
	kept := make([]bool, len(nodes))
	root := nodes[from]
	root.Parent = -1
	root.LastMoveIndex = -1
	out := []Node{root}
	kept[from] = true

	for i := 0; i < len(out); i++ {
		ch := out[i].Children
		if ch.Empty() {
			continue
		}
		start := len(out)
		for j := 0; j < ch.Len(); j++ {
			old := ch.Get(j)
			c := nodes[old]
			c.Parent = int32(i)
			out = append(out, c)
			kept[old] = true
		}
		out[i].Children = IdxRange{Start: uint32(start), End: uint32(len(out))}
	}
	return out, kept
}

// propagate walks from node up to the root inclusive, adding values and
// incrementing visit counts. The values are flipped once to the node's
// perspective first, then parent-flipped at every level.
func propagate(nodes []Node, node int, values Values) {
	values = values.Flip()
	cur := node
	for {
		n := &nodes[cur]
		n.Visits++
		n.SumValues = n.SumValues.Add(values)
		if n.Parent < 0 {
			break
		}
		cur = int(n.Parent)
		values = values.ParentFlip()
	}
}

// selectChild picks the child of parent maximizing the UCT score, with
// the prior as a deterministic tie-breaker.
func selectChild(nodes []Node, parent int, fpu Values, mode FpuMode, w UctWeights) int {
	p := &nodes[parent]
	if p.Children.Empty() {
		panic("selecting from a node with no stored children")
	}
	fpuValue := mode.Select(fpu.Value())

	best := -1
	bestScore := math.Inf(-1)
	var bestPolicy float32
	for i := 0; i < p.Children.Len(); i++ {
		ci := p.Children.Get(i)
		c := &nodes[ci]
		score := c.uct(p.Visits, fpuValue, fpu.MovesLeft, w)
		if best < 0 || score > bestScore || (score == bestScore && c.NetPolicy > bestPolicy) {
			best, bestScore, bestPolicy = ci, score, c.NetPolicy
		}
	}
	return best
}

type childEntry struct {
	moveIndex int
	logit     float32
}

// createChildren appends one node per entry to the arena, sorted by
// non-increasing logit, with priors softmax-normalized over the stored
// subset only. Probability mass of unstored moves is deliberately
// discarded.
func createChildren(nodes *[]Node, parent int, entries []childEntry) IdxRange {
	if len(entries) == 0 {
		panic("node expansion with no moves")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].logit > entries[j].logit
	})

	maxLogit := entries[0].logit
	start := len(*nodes)
	var total float32
	for _, e := range entries {
		p := float32(math.Exp(float64(e.logit - maxLogit)))
		total += p
		*nodes = append(*nodes, newNode(int32(parent), int32(e.moveIndex), p))
	}
	for i := start; i < len(*nodes); i++ {
		(*nodes)[i].NetPolicy /= total
	}
	return IdxRange{Start: uint32(start), End: uint32(len(*nodes))}
}
