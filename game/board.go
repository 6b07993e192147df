package game

import "encoding"

// Player identifies one of the two sides, 0 or 1.
type Player uint8

func (p Player) Other() Player {
	return 1 - p
}

// Outcome is the result of a finished game.
type Outcome struct {
	Draw   bool
	Winner Player // valid only when Draw is false
}

func Win(p Player) Outcome {
	return Outcome{Winner: p}
}

func Draw() Outcome {
	return Outcome{Draw: true}
}

// Board is the rules capability consumed by the search engine. Moves are
// indices into a fixed action space of size PolicySize, matching the
// layout of the evaluator's policy head.
type Board interface {
	encoding.BinaryMarshaler

	// Clone returns an independent copy.
	Clone() Board
	// Player returns the side to move.
	Player() Player
	// LegalMoves returns the legal moves as action-space indices.
	LegalMoves() []int
	// Play applies a legal move in place.
	Play(mv int)
	// Outcome reports the result once the game is over.
	Outcome() (Outcome, bool)
	// MoveCount returns the number of moves played so far.
	MoveCount() int
	// PolicySize returns the size of the full action space.
	PolicySize() int
	// Key returns a position hash used for evaluation caching.
	Key() uint64
}
