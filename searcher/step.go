package searcher

import (
	"fmt"
	"sort"

	"selfzero/game"
)

// Request asks the evaluator for one leaf evaluation. The board is the
// position at the requested node.
type Request struct {
	Node  int
	Board game.Board
}

// Respond pairs this request with its evaluation.
func (r Request) Respond(eval Evaluation) Response {
	return Response{Request: r, Eval: eval}
}

// Response carries an evaluation back to the node that requested it.
type Response struct {
	Request
	Eval Evaluation
}

// Gather runs the selection phase: descend from the root and either
// return the next evaluation request, or complete one visit internally
// (draw-depth cutoff or terminal position) and return nil. Calling
// Gather while a request is outstanding is a protocol violation.
func (t *Tree) Gather(w UctWeights, fpu FpuMode) *Request {
	if t.current != -1 {
		panic(fmt.Sprintf("gather: request for node %d is already outstanding", t.current))
	}

	if !t.nodes[0].expanded() {
		t.current = 0
		return &Request{Node: 0, Board: t.rootBoard.Clone()}
	}

	cur := 0
	board := t.rootBoard.Clone()
	baseline := DrawValues(0)
	depth := 0

	for {
		if depth >= t.drawDepth {
			propagate(t.nodes, cur, DrawValues(0))
			return nil
		}

		if !t.nodes[cur].expanded() {
			t.current = cur
			return &Request{Node: cur, Board: board}
		}

		// First-play-urgency baseline: the deepest visited ancestor's
		// average value, flipped to the child perspective every level.
		if t.nodes[cur].Visits > 0 {
			baseline = t.nodes[cur].values()
		}
		baseline = baseline.Flip()

		next := selectChild(t.nodes, cur, baseline, fpu, w)
		board.Play(int(t.nodes[next].LastMoveIndex))

		if outcome, over := board.Outcome(); over {
			// Finished positions are never sent to the evaluator; score
			// them directly.
			propagate(t.nodes, next, OutcomeValues(outcome, board.Player()))
			return nil
		}

		cur = next
		depth++
	}
}

// Apply runs the backpropagation phase: expand the requested node with
// the evaluator's policy and propagate its values to the root. The root
// stores one child per legal move; deeper nodes store only the top
// topMoves legal moves by logit. The response must match the
// outstanding request.
func (t *Tree) Apply(topMoves int, resp Response) {
	if topMoves <= 0 {
		panic("top moves must be positive")
	}
	if t.current != resp.Node {
		panic(fmt.Sprintf("apply: response for node %d, outstanding request is %d", resp.Node, t.current))
	}
	t.current = -1

	policy := resp.Eval.Policy
	if len(policy) != t.rootBoard.PolicySize() {
		panic(fmt.Sprintf("policy length %d does not match action space %d", len(policy), t.rootBoard.PolicySize()))
	}

	legal := resp.Board.LegalMoves()
	entries := make([]childEntry, 0, len(legal))
	for _, mv := range legal {
		entries = append(entries, childEntry{moveIndex: mv, logit: policy[mv]})
	}
	if resp.Node != 0 && len(entries) > topMoves {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].logit > entries[j].logit
		})
		entries = entries[:topMoves]
	}

	children := createChildren(&t.nodes, resp.Node, entries)
	node := &t.nodes[resp.Node]
	values := resp.Eval.Values
	node.NetValues = &values
	node.Children = children

	propagate(t.nodes, resp.Node, values)
}
