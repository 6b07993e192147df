package nn

import (
	"context"
	"sync/atomic"

	"selfzero/game"
	"selfzero/searcher"
)

// Uniform is an evaluator that predicts a draw with a uniform policy
// for every position. Useful as a stand-in network in tests and for
// exercising the scheduler at full speed.
type Uniform struct {
	maxBatch int
}

func NewUniform(maxBatchSize int) *Uniform {
	return &Uniform{maxBatch: maxBatchSize}
}

func (u *Uniform) MaxBatchSize() int {
	return u.maxBatch
}

func (u *Uniform) EvaluateBatch(_ context.Context, boards []game.Board) ([]searcher.Evaluation, error) {
	if err := checkBatch(len(boards), u.maxBatch); err != nil {
		return nil, err
	}
	evals := make([]searcher.Evaluation, len(boards))
	for i, b := range boards {
		evals[i] = searcher.Evaluation{
			Values: searcher.DrawValues(float32(b.PolicySize())),
			Policy: make([]float32, b.PolicySize()),
		}
	}
	return evals, nil
}

// UniformRecurrent is the latent-model counterpart of Uniform. Its
// state handles carry no data but track their release, so tests can
// assert the single-owner discipline.
type UniformRecurrent struct {
	maxBatch   int
	policySize int
	live       atomic.Int64
}

func NewUniformRecurrent(maxBatchSize, policySize int) *UniformRecurrent {
	return &UniformRecurrent{maxBatch: maxBatchSize, policySize: policySize}
}

func (u *UniformRecurrent) MaxBatchSize() int {
	return u.maxBatch
}

// LiveStates returns the number of issued state handles not yet
// released.
func (u *UniformRecurrent) LiveStates() int64 {
	return u.live.Load()
}

type uniformState struct {
	owner    *UniformRecurrent
	released bool
}

func (s *uniformState) Release() {
	if s.released {
		panic("latent state released twice")
	}
	s.released = true
	s.owner.live.Add(-1)
}

func (u *UniformRecurrent) newEval() searcher.LatentEvaluation {
	u.live.Add(1)
	return searcher.LatentEvaluation{
		State: &uniformState{owner: u},
		Eval: searcher.Evaluation{
			Values: searcher.DrawValues(float32(u.policySize)),
			Policy: make([]float32, u.policySize),
		},
	}
}

func (u *UniformRecurrent) EncodeBatch(_ context.Context, boards []game.Board) ([]searcher.LatentEvaluation, error) {
	if err := checkBatch(len(boards), u.maxBatch); err != nil {
		return nil, err
	}
	evals := make([]searcher.LatentEvaluation, len(boards))
	for i := range boards {
		evals[i] = u.newEval()
	}
	return evals, nil
}

func (u *UniformRecurrent) AdvanceBatch(_ context.Context, states []searcher.State, moves []int) ([]searcher.LatentEvaluation, error) {
	if len(states) != len(moves) {
		panic("states and moves must have the same length")
	}
	if err := checkBatch(len(states), u.maxBatch); err != nil {
		return nil, err
	}
	evals := make([]searcher.LatentEvaluation, len(states))
	for i := range states {
		evals[i] = u.newEval()
	}
	return evals, nil
}
