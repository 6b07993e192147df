package searcher

import (
	"fmt"

	"selfzero/game"
)

// Values is a position evaluation from the perspective of one player:
// win/draw/loss probabilities plus an estimate of the number of plies
// left in the game.
type Values struct {
	Win       float32
	Draw      float32
	Loss      float32
	MovesLeft float32
}

// Value collapses the WDL triple into a single score in [-1, 1].
func (v Values) Value() float32 {
	return v.Win - v.Loss
}

// Flip swaps the perspective between the two players.
func (v Values) Flip() Values {
	v.Win, v.Loss = v.Loss, v.Win
	return v
}

// ParentFlip flips the perspective and accounts for the extra ply seen
// by the parent node.
func (v Values) ParentFlip() Values {
	v = v.Flip()
	v.MovesLeft++
	return v
}

func (v Values) Add(o Values) Values {
	return Values{
		Win:       v.Win + o.Win,
		Draw:      v.Draw + o.Draw,
		Loss:      v.Loss + o.Loss,
		MovesLeft: v.MovesLeft + o.MovesLeft,
	}
}

// Div scales the accumulated values down to an average.
func (v Values) Div(visits uint64) Values {
	n := float32(visits)
	return Values{v.Win / n, v.Draw / n, v.Loss / n, v.MovesLeft / n}
}

func (v Values) String() string {
	return fmt.Sprintf("w/d/l %.3f/%.3f/%.3f, moves left %.1f", v.Win, v.Draw, v.Loss, v.MovesLeft)
}

// DrawValues is a certain draw with the given plies remaining.
func DrawValues(movesLeft float32) Values {
	return Values{Draw: 1, MovesLeft: movesLeft}
}

// OutcomeValues converts a final outcome to Values from the point of
// view of the given player.
func OutcomeValues(o game.Outcome, pov game.Player) Values {
	if o.Draw {
		return DrawValues(0)
	}
	if o.Winner == pov {
		return Values{Win: 1}
	}
	return Values{Loss: 1}
}

// Evaluation is what the evaluator returns for a single position: values
// from the perspective of the player to move, plus policy logits (or,
// once normalized, probabilities) over the full action space.
type Evaluation struct {
	Values Values
	Policy []float32
}
