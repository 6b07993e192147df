// Package selfplay drives batched self-play: a generator worker keeps
// a fixed-size batch of independent search trees alive so their leaf
// evaluations can be merged into one evaluator call per tick.
package selfplay

import (
	"fmt"
	"math"

	"selfzero/searcher"
)

// Settings is the full configuration surface of a generator worker.
// It is replaced wholesale by a NewSettings command.
type Settings struct {
	// BatchSize is the number of concurrently searched games, which is
	// also the evaluator batch size.
	BatchSize int `yaml:"batch_size"`

	Exploration        float64 `yaml:"exploration"`
	MovesLeftWeight    float64 `yaml:"moves_left_weight"`
	MovesLeftSharpness float64 `yaml:"moves_left_sharpness"`

	// FpuMode is "parent", "relative" or "fixed"; FpuOffset is the
	// offset (relative) or constant (fixed).
	FpuMode   string  `yaml:"fpu_mode"`
	FpuOffset float32 `yaml:"fpu_offset"`

	Temperature       float64 `yaml:"temperature"`
	ZeroTempMoveCount int     `yaml:"zero_temp_move_count"`

	// FullIterations is the search budget for exploratory games,
	// PartIterations for the rest; FullSearchProb picks between them
	// once per game.
	FullIterations uint64  `yaml:"full_iterations"`
	PartIterations uint64  `yaml:"part_iterations"`
	FullSearchProb float64 `yaml:"full_search_prob"`

	DirichletAlpha float64 `yaml:"dirichlet_alpha"`
	DirichletEps   float64 `yaml:"dirichlet_eps"`

	// TopMoves bounds how many children non-root nodes store.
	TopMoves int `yaml:"top_moves"`
	// CacheSize bounds the per-game evaluation cache.
	CacheSize int `yaml:"cache_size"`
	// KeepTree reuses the played subtree across moves instead of
	// starting a fresh tree.
	KeepTree bool `yaml:"keep_tree"`
	// MaxGameLength scores games still running after this many moves
	// as draws; zero means unbounded.
	MaxGameLength int `yaml:"max_game_length"`
}

func DefaultSettings() Settings {
	return Settings{
		BatchSize:          128,
		Exploration:        2.0,
		MovesLeftSharpness: 0.5,
		FpuMode:            "parent",
		Temperature:        1.0,
		ZeroTempMoveCount:  20,
		FullIterations:     600,
		PartIterations:     100,
		FullSearchProb:     0.25,
		DirichletAlpha:     0.3,
		DirichletEps:       0.25,
		TopMoves:           16,
		CacheSize:          256,
		KeepTree:           true,
		MaxGameLength:      300,
	}
}

// resolved is a validated Settings with the searcher-level values
// parsed out, so the hot loop never re-parses.
type resolved struct {
	Settings
	weights searcher.UctWeights
	fpu     searcher.FpuMode
}

func (s Settings) resolve() (*resolved, error) {
	if s.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	if s.FullIterations == 0 || s.PartIterations == 0 {
		return nil, fmt.Errorf("iteration budgets must be positive, got full=%d part=%d", s.FullIterations, s.PartIterations)
	}
	if s.TopMoves <= 0 {
		return nil, fmt.Errorf("top moves must be positive, got %d", s.TopMoves)
	}
	if s.CacheSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", s.CacheSize)
	}
	if s.DirichletEps > 0 && s.DirichletAlpha <= 0 {
		return nil, fmt.Errorf("dirichlet alpha must be positive when eps is %v, got %v", s.DirichletEps, s.DirichletAlpha)
	}
	fpu, err := searcher.ParseFpuMode(s.FpuMode, s.FpuOffset)
	if err != nil {
		return nil, err
	}
	return &resolved{
		Settings: s,
		weights: searcher.UctWeights{
			Exploration:        s.Exploration,
			MovesLeft:          s.MovesLeftWeight,
			MovesLeftSharpness: s.MovesLeftSharpness,
		},
		fpu: fpu,
	}, nil
}

// drawDepth bounds a tree's search depth so it never looks past the
// maximum game length.
func (s *resolved) drawDepth(moveCount int) int {
	if s.MaxGameLength <= 0 {
		return math.MaxInt32
	}
	depth := s.MaxGameLength - moveCount
	if depth < 1 {
		depth = 1
	}
	return depth
}

func (s *resolved) targetIterations(fullSearch bool) uint64 {
	if fullSearch {
		return s.FullIterations
	}
	return s.PartIterations
}
