package searcher

import (
	"context"
	"math"

	"selfzero/game"
)

// Evaluator is the direct board-evaluation capability: submit a batch
// of boards, receive one evaluation per board. Implementations must
// reject batches larger than MaxBatchSize before any processing.
type Evaluator interface {
	MaxBatchSize() int
	EvaluateBatch(ctx context.Context, boards []game.Board) ([]Evaluation, error)
}

// LatentEvaluation pairs a new state handle with its evaluation.
type LatentEvaluation struct {
	State State
	Eval  Evaluation
}

// RecurrentEvaluator is the latent-model capability: encode boards
// into initial states, or advance existing states by one move. The
// input states stay owned by their nodes; only the returned handles
// change hands.
type RecurrentEvaluator interface {
	MaxBatchSize() int
	EncodeBatch(ctx context.Context, boards []game.Board) ([]LatentEvaluation, error)
	AdvanceBatch(ctx context.Context, states []State, moves []int) ([]LatentEvaluation, error)
}

// Settings configures a single synchronous search, without the
// batching machinery of the selfplay package.
type Settings struct {
	Weights   UctWeights
	Fpu       FpuMode
	TopMoves  int
	DrawDepth int
}

func (s Settings) drawDepth() int {
	if s.DrawDepth > 0 {
		return s.DrawDepth
	}
	return math.MaxInt32
}

// BuildTree searches the given board until stop reports true,
// evaluating one leaf at a time.
func (s Settings) BuildTree(ctx context.Context, board game.Board, eval Evaluator, stop func(*Tree) bool) (*Tree, error) {
	tree := NewTree(board, s.drawDepth())
	if err := s.ExpandTree(ctx, tree, eval, stop); err != nil {
		return nil, err
	}
	return tree, nil
}

// ExpandTree continues searching an existing tree until stop reports
// true.
func (s Settings) ExpandTree(ctx context.Context, tree *Tree, eval Evaluator, stop func(*Tree) bool) error {
	for !stop(tree) {
		req := tree.Gather(s.Weights, s.Fpu)
		if req == nil {
			continue
		}
		evals, err := eval.EvaluateBatch(ctx, []game.Board{req.Board})
		if err != nil {
			return err
		}
		tree.Apply(s.TopMoves, req.Respond(evals[0]))
	}
	return nil
}

// BuildLatentTree searches the given board with a recurrent evaluator
// until stop reports true.
func (s Settings) BuildLatentTree(ctx context.Context, board game.Board, eval RecurrentEvaluator, stop func(*LatentTree) bool) (*LatentTree, error) {
	tree := NewLatentTree(board, s.drawDepth())
	for !stop(tree) {
		req := tree.Gather(s.Weights, s.Fpu)
		if req == nil {
			continue
		}
		var evals []LatentEvaluation
		var err error
		if req.IsRoot() {
			evals, err = eval.EncodeBatch(ctx, []game.Board{req.Board})
		} else {
			evals, err = eval.AdvanceBatch(ctx, []State{req.State}, []int{req.MoveIndex})
		}
		if err != nil {
			tree.current = -1
			tree.Release()
			return nil, err
		}
		tree.Apply(s.TopMoves, req.Respond(evals[0].State, evals[0].Eval))
	}
	return tree, nil
}

// Bot plays moves by searching a fixed number of iterations per
// position.
type Bot struct {
	Settings Settings
	Visits   uint64
	Eval     Evaluator
}

// SelectMove searches the board and returns the most-visited root move.
func (b *Bot) SelectMove(ctx context.Context, board game.Board) (int, error) {
	tree, err := b.Settings.BuildTree(ctx, board, b.Eval, func(t *Tree) bool {
		return t.RootVisits() >= b.Visits
	})
	if err != nil {
		return 0, err
	}
	return tree.BestMoveIndex(), nil
}
