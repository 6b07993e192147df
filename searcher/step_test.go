package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"selfzero/game"
)

func c4Board(t *testing.T, moves ...int) game.Board {
	t.Helper()
	b := game.NewConnectFour()
	for _, mv := range moves {
		b.Play(mv)
	}
	return b
}

func uniformPolicy(n int) []float32 {
	return make([]float32, n)
}

func TestNewTree(t *testing.T) {
	t.Run("starts with an unexpanded root", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		require.Equal(t, 1, tree.Len())
		require.Equal(t, uint64(0), tree.RootVisits())
		require.True(t, tree.RootChildren().Empty())
	})

	t.Run("finished board panics", func(t *testing.T) {
		board := c4Board(t, 0, 1, 0, 1, 0, 1, 0)
		require.Panics(t, func() { NewTree(board, 100) })
	})
}

func TestGatherApplyRoot(t *testing.T) {
	w := DefaultUctWeights()
	tree := NewTree(c4Board(t), 100)

	req := tree.Gather(w, FpuParent)
	require.NotNil(t, req)
	require.Equal(t, 0, req.Node, "first request must be the root")
	require.Equal(t, 0, req.Board.MoveCount())

	t.Run("second gather with an outstanding request panics", func(t *testing.T) {
		require.Panics(t, func() { tree.Gather(w, FpuParent) })
	})

	values := Values{Win: 0.6, Draw: 0.3, Loss: 0.1, MovesLeft: 15}
	policy := []float32{0, 1, 2, 3, 2, 1, 0}
	tree.Apply(4, req.Respond(Evaluation{Values: values, Policy: policy}))

	t.Run("root stores every legal move regardless of the top moves limit", func(t *testing.T) {
		require.Equal(t, 7, tree.RootChildren().Len())
	})

	t.Run("children are sorted by prior and normalized", func(t *testing.T) {
		var sum float32
		prev := float32(2)
		for i := 0; i < tree.RootChildren().Len(); i++ {
			p := tree.nodes[tree.RootChildren().Get(i)].NetPolicy
			require.LessOrEqual(t, p, prev)
			prev = p
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-5)
	})

	t.Run("highest logit child comes first", func(t *testing.T) {
		require.Equal(t, 3, tree.ChildMove(0))
	})

	t.Run("root evaluation round trips", func(t *testing.T) {
		require.Equal(t, uint64(1), tree.RootVisits())
		require.Equal(t, values, tree.Eval().Values)
		require.Equal(t, values, tree.NetRootEvaluation().Values)
	})
}

func TestApplyValidation(t *testing.T) {
	w := DefaultUctWeights()

	t.Run("response for the wrong node panics", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		req := tree.Gather(w, FpuParent)
		bad := *req
		bad.Node = 5
		require.Panics(t, func() {
			tree.Apply(4, bad.Respond(Evaluation{Policy: uniformPolicy(7)}))
		})
	})

	t.Run("wrong policy length panics", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		req := tree.Gather(w, FpuParent)
		require.Panics(t, func() {
			tree.Apply(4, req.Respond(Evaluation{Policy: uniformPolicy(6)}))
		})
	})

	t.Run("non-positive top moves panics", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		req := tree.Gather(w, FpuParent)
		require.Panics(t, func() {
			tree.Apply(0, req.Respond(Evaluation{Policy: uniformPolicy(7)}))
		})
	})
}

func TestNonRootTopMoves(t *testing.T) {
	w := DefaultUctWeights()
	tree := NewTree(c4Board(t), 100)

	req := tree.Gather(w, FpuParent)
	tree.Apply(2, req.Respond(Evaluation{Values: DrawValues(10), Policy: uniformPolicy(7)}))

	req = tree.Gather(w, FpuParent)
	require.NotNil(t, req)
	require.NotEqual(t, 0, req.Node)
	require.Equal(t, 1, req.Board.MoveCount(), "request board is one ply deep")

	tree.Apply(2, req.Respond(Evaluation{
		Values: DrawValues(9),
		Policy: []float32{0, 5, 0, 0, 3, 0, 0},
	}))

	child := &tree.nodes[req.Node]
	require.Equal(t, 2, child.Children.Len(), "deep nodes keep only the top moves")
	require.Equal(t, int32(1), tree.nodes[child.Children.Get(0)].LastMoveIndex)
	require.Equal(t, int32(4), tree.nodes[child.Children.Get(1)].LastMoveIndex)
}

func TestPropagation(t *testing.T) {
	w := DefaultUctWeights()
	tree := NewTree(c4Board(t), 100)

	rootValues := Values{Win: 0.5, Draw: 0.5, MovesLeft: 10}
	req := tree.Gather(w, FpuParent)
	tree.Apply(4, req.Respond(Evaluation{Values: rootValues, Policy: uniformPolicy(7)}))

	childValues := Values{Win: 1, MovesLeft: 4}
	req = tree.Gather(w, FpuParent)
	child := req.Node
	tree.Apply(4, req.Respond(Evaluation{Values: childValues, Policy: uniformPolicy(7)}))

	t.Run("visits reach every ancestor", func(t *testing.T) {
		require.Equal(t, uint64(2), tree.RootVisits())
		require.Equal(t, uint64(1), tree.nodes[child].Visits)
	})

	t.Run("perspective alternates on the way up", func(t *testing.T) {
		// The child is a win for its own player, stored as a loss from
		// the parent perspective.
		require.Equal(t, Values{Loss: 1, MovesLeft: 4}, tree.nodes[child].SumValues)
		// One ply higher it is a win again, one move further out.
		want := rootValues.Flip().Add(Values{Win: 1, MovesLeft: 5})
		require.Equal(t, want, tree.nodes[0].SumValues)
	})

	t.Run("search eval averages from the root perspective", func(t *testing.T) {
		// The child win belongs to the opponent, so the root sees it as
		// a loss.
		got := tree.Eval().Values
		require.InDelta(t, 0.25, got.Win, 1e-6)
		require.InDelta(t, 0.25, got.Draw, 1e-6)
		require.InDelta(t, 0.5, got.Loss, 1e-6)
		require.InDelta(t, 7.5, got.MovesLeft, 1e-6)
	})
}

func TestGatherTerminal(t *testing.T) {
	w := DefaultUctWeights()
	// Three in column 0; the move to column 0 ends the game.
	board := c4Board(t, 0, 1, 0, 1, 0, 1)
	tree := NewTree(board, 100)

	req := tree.Gather(w, FpuParent)
	tree.Apply(4, req.Respond(Evaluation{Values: DrawValues(10), Policy: uniformPolicy(7)}))

	// Uniform priors tie; the stored order starts at column 0, which
	// wins immediately for the root player.
	req = tree.Gather(w, FpuParent)
	require.Nil(t, req, "terminal positions complete the visit internally")

	require.Equal(t, uint64(2), tree.RootVisits())
	win := tree.findRootChild(0)
	require.Equal(t, uint64(1), tree.nodes[win].Visits)
	require.Equal(t, Values{Win: 1}, tree.nodes[win].SumValues,
		"a win for the root player is stored as a win at the child")
}

func TestGatherDrawDepth(t *testing.T) {
	w := DefaultUctWeights()
	tree := NewTree(c4Board(t), 1)

	req := tree.Gather(w, FpuParent)
	tree.Apply(4, req.Respond(Evaluation{Values: DrawValues(10), Policy: uniformPolicy(7)}))

	req = tree.Gather(w, FpuParent)
	require.Nil(t, req, "the depth cutoff completes the visit as a draw")

	require.Equal(t, uint64(2), tree.RootVisits())
	var visited int
	for i := 1; i < tree.Len(); i++ {
		if tree.nodes[i].Visits > 0 {
			visited = i
		}
	}
	require.Equal(t, Values{Draw: 1}, tree.nodes[visited].SumValues)
}

func TestBestMoveIndex(t *testing.T) {
	w := DefaultUctWeights()
	tree := NewTree(c4Board(t), 100)

	req := tree.Gather(w, FpuParent)
	tree.Apply(4, req.Respond(Evaluation{Values: DrawValues(10), Policy: []float32{0, 0, 0, 1, 0, 0, 0}}))

	t.Run("prior breaks the all-zero visit tie", func(t *testing.T) {
		require.Equal(t, 3, tree.BestMoveIndex())
	})

	req = tree.Gather(w, FpuParent)
	visitedMove := int(tree.nodes[req.Node].LastMoveIndex)
	tree.Apply(4, req.Respond(Evaluation{Values: DrawValues(9), Policy: uniformPolicy(7)}))

	t.Run("visits dominate priors", func(t *testing.T) {
		require.Equal(t, visitedMove, tree.BestMoveIndex())
	})
}

func TestKeepMove(t *testing.T) {
	w := DefaultUctWeights()

	expandOnce := func(t *testing.T, tree *Tree) int {
		t.Helper()
		req := tree.Gather(w, FpuParent)
		tree.Apply(4, req.Respond(Evaluation{Values: DrawValues(10), Policy: uniformPolicy(7)}))
		return req.Node
	}

	t.Run("reroots at an expanded child", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		expandOnce(t, tree)
		child := expandOnce(t, tree)
		move := int(tree.nodes[child].LastMoveIndex)

		next, ok := tree.KeepMove(move)
		require.True(t, ok)
		require.Equal(t, uint64(1), next.RootVisits())
		require.Equal(t, 7, next.RootChildren().Len())
		require.Equal(t, 1, next.RootBoard().MoveCount())
		require.Equal(t, 8, next.Len(), "siblings of the kept child are dropped")
	})

	t.Run("unexpanded child cannot be kept", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		expandOnce(t, tree)

		_, ok := tree.KeepMove(2)
		require.False(t, ok)
	})

	t.Run("outstanding request panics", func(t *testing.T) {
		tree := NewTree(c4Board(t), 100)
		expandOnce(t, tree)
		tree.Gather(w, FpuParent)

		require.Panics(t, func() { tree.KeepMove(0) })
	})
}
