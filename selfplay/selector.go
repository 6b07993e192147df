package selfplay

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distmv"
)

// MoveSelector converts a search visit distribution into a played
// move. Below ZeroTempMoveCount the selection samples proportionally
// to visits^(1/temperature); from that move on (or with temperature
// zero) it always picks the maximum.
type MoveSelector struct {
	Temperature       float64
	ZeroTempMoveCount int
}

// Select returns the index of the chosen entry in policy. Ties on the
// maximum resolve to the lowest index, which for prior-sorted children
// is the highest-prior child.
func (s MoveSelector) Select(moveCount int, policy []float32, rng *rand.Rand) int {
	if len(policy) == 0 {
		panic("cannot select a move from an empty policy")
	}
	if s.Temperature == 0 || moveCount >= s.ZeroTempMoveCount {
		return argmax(policy)
	}

	exponent := 1.0 / s.Temperature
	weights := make([]float64, len(policy))
	total := 0.0
	for i, p := range policy {
		w := math.Pow(float64(p), exponent)
		weights[i] = w
		total += w
	}
	if total == 0 {
		return argmax(policy)
	}

	sampled := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if sampled < cumulative {
			return i
		}
	}
	// Rounding fallback.
	return len(policy) - 1
}

func argmax(policy []float32) int {
	best := 0
	for i, p := range policy {
		if p > policy[best] {
			best = i
		}
	}
	return best
}

// sampleDirichlet draws a symmetric Dirichlet(alpha) sample of size n.
func sampleDirichlet(alpha float64, n int, src rand.Source) []float32 {
	alphas := make([]float64, n)
	for i := range alphas {
		alphas[i] = alpha
	}
	sample := distmv.NewDirichlet(alphas, src).Rand(nil)
	noise := make([]float32, n)
	for i, v := range sample {
		noise[i] = float32(v)
	}
	return noise
}
