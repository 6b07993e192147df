package selfplay

import (
	"selfzero/game"
	"selfzero/searcher"
)

// Commands flow from the supervisor to a generator worker. A worker
// without settings or an evaluator blocks until it has both; otherwise
// commands are polled between ticks.
type CommandKind int

const (
	// CommandStop shuts the worker down cleanly.
	CommandStop CommandKind = iota
	// CommandNewSettings replaces the worker's settings.
	CommandNewSettings
	// CommandNewEvaluator replaces the evaluator and clears all
	// evaluation caches.
	CommandNewEvaluator
	// CommandWaitForEvaluator drops the current evaluator; the worker
	// pauses until a new one arrives.
	CommandWaitForEvaluator
)

type Command struct {
	Kind      CommandKind
	Settings  *Settings
	Evaluator searcher.Evaluator
}

func Stop() Command {
	return Command{Kind: CommandStop}
}

func NewSettings(s Settings) Command {
	return Command{Kind: CommandNewSettings, Settings: &s}
}

func NewEvaluator(e searcher.Evaluator) Command {
	return Command{Kind: CommandNewEvaluator, Evaluator: e}
}

func WaitForEvaluator() Command {
	return Command{Kind: CommandWaitForEvaluator}
}

// Update is a message from a worker to the supervisor.
type Update interface {
	update()
}

// Progress reports one scheduling tick.
type Progress struct {
	WorkerID  int
	CacheHits uint64
	RealEvals uint64
	Moves     uint64
}

func (Progress) update() {}

// FinishedGame carries the full sample sequence of one completed game.
type FinishedGame struct {
	WorkerID int
	Index    uint64
	Record   Record
}

func (FinishedGame) update() {}

// Position is one training sample: the searched position, the move
// actually played, and both the raw network and the search evaluation
// of the root.
type Position struct {
	Board game.Board
	// ShouldStore marks positions searched with the full budget.
	ShouldStore bool
	PlayedMove  int
	Visits      uint64
	NetEval     searcher.Evaluation
	SearchEval  searcher.Evaluation
}

// Record is a finished game: its outcome and every searched position
// in order.
type Record struct {
	Outcome   game.Outcome
	Positions []Position
}
