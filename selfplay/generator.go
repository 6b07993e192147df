package selfplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"selfzero/game"
	"selfzero/searcher"
)

// Run is a generator worker: it keeps exactly BatchSize games
// searching concurrently, merges their pending leaf requests into one
// evaluator call per tick, and reports progress and finished games on
// the update channel.
//
// Until both settings and an evaluator have arrived the worker blocks
// on the command channel; afterwards commands are polled between
// ticks. Cancellation is honored only at tick boundaries, so no tree
// is ever abandoned with a request outstanding. A closed command
// channel is fatal.
func Run(ctx context.Context, workerID int, startPos func() game.Board, cmds <-chan Command, updates chan<- Update) error {
	logger := log.With().Int("worker", workerID).Logger()

	g := &generatorState{
		workerID: workerID,
		startPos: startPos,
		rng:      rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano()))),
		logger:   logger,
	}

	var settings *resolved
	var eval searcher.Evaluator

	for {
		var cmd Command
		var got, ok bool
		if settings != nil && eval != nil {
			select {
			case cmd, ok = <-cmds:
				got = true
			default:
			}
		} else {
			select {
			case cmd, ok = <-cmds:
				got = true
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if got {
			if !ok {
				return errors.New("command channel closed")
			}
			switch cmd.Kind {
			case CommandStop:
				logger.Info().Msg("generator stopping")
				return nil
			case CommandNewSettings:
				r, err := cmd.Settings.resolve()
				if err != nil {
					return fmt.Errorf("invalid settings: %w", err)
				}
				if settings != nil && settings.BatchSize != r.BatchSize {
					// Live games are tied to the old batch size.
					g.reset()
				}
				settings = r
				logger.Info().Int("batch-size", r.BatchSize).Msg("generator received new settings")
			case CommandNewEvaluator:
				eval = cmd.Evaluator
				g.clearCaches()
				logger.Info().Msg("generator received new evaluator")
			case CommandWaitForEvaluator:
				eval = nil
				logger.Info().Msg("generator waiting for new evaluator")
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if settings == nil || eval == nil {
			continue
		}
		if err := g.step(ctx, settings, eval, updates); err != nil {
			return err
		}
	}
}

type counter struct {
	moves     uint64
	cacheHits uint64
}

type generatorState struct {
	workerID int
	startPos func() game.Board
	rng      *rand.Rand
	logger   zerolog.Logger

	games     []*gameState
	responses []searcher.Response
	nextIndex uint64
}

func (g *generatorState) reset() {
	if len(g.games) > 0 {
		g.logger.Warn().Int("games", len(g.games)).Msg("dropping live games after batch size change")
	}
	g.games = nil
	g.responses = nil
}

func (g *generatorState) clearCaches() {
	for _, gs := range g.games {
		gs.cache.Purge()
	}
}

// step is one scheduling tick: collect exactly BatchSize requests,
// evaluate them in a single call, and hold the responses for the next
// tick.
func (g *generatorState) step(ctx context.Context, s *resolved, eval searcher.Evaluator, updates chan<- Update) error {
	var c counter
	requests, err := g.collectRequests(ctx, s, &c, updates)
	if err != nil {
		return err
	}
	if len(requests) != s.BatchSize {
		panic(fmt.Sprintf("collected %d requests for batch size %d", len(requests), s.BatchSize))
	}

	boards := make([]game.Board, len(requests))
	for i, r := range requests {
		boards[i] = r.Board
	}
	evals, err := eval.EvaluateBatch(ctx, boards)
	if err != nil {
		return fmt.Errorf("batch evaluation failed: %w", err)
	}
	if len(evals) != len(requests) {
		return fmt.Errorf("evaluator returned %d evaluations for %d requests", len(evals), len(requests))
	}

	if len(g.responses) != 0 {
		panic("responses from the previous tick were not consumed")
	}
	for i, r := range requests {
		g.responses = append(g.responses, r.Respond(evals[i]))
	}

	return send(ctx, updates, Progress{
		WorkerID:  g.workerID,
		CacheHits: c.cacheHits,
		RealEvals: uint64(len(requests)),
		Moves:     c.moves,
	})
}

// collectRequests steps every live game with its pending response,
// then starts and steps fresh games until the batch is full again.
// Games that finish, or that complete searches without needing the
// evaluator, free their slot immediately.
func (g *generatorState) collectRequests(ctx context.Context, s *resolved, c *counter, updates chan<- Update) ([]searcher.Request, error) {
	existing := g.games
	responses := g.responses
	g.games = nil
	g.responses = nil
	if len(responses) != len(existing) {
		panic(fmt.Sprintf("%d pending responses for %d games", len(responses), len(existing)))
	}

	var requests []searcher.Request
	stepGame := func(gs *gameState, resp *searcher.Response) error {
		req, err := gs.step(ctx, s, g, resp, updates, c)
		if err != nil {
			return err
		}
		if req != nil {
			g.games = append(g.games, gs)
			requests = append(requests, *req)
		}
		return nil
	}

	for i, gs := range existing {
		resp := responses[i]
		if err := stepGame(gs, &resp); err != nil {
			return nil, err
		}
	}
	for len(g.games) < s.BatchSize {
		if err := stepGame(g.newGame(s), nil); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func (g *generatorState) newGame(s *resolved) *gameState {
	board := g.startPos()
	cache, err := lru.New[uint64, searcher.Evaluation](s.CacheSize)
	if err != nil {
		panic(err)
	}
	index := g.nextIndex
	g.nextIndex++
	return &gameState{
		index:  index,
		search: newSearchState(s, g.rng, searcher.NewTree(board, s.drawDepth(board.MoveCount()))),
		cache:  cache,
	}
}

// gameState is one game being played out: its current search, the
// samples recorded so far, and a bounded recency cache of leaf
// evaluations keyed by position hash.
type gameState struct {
	index     uint64
	search    *searchState
	positions []Position
	cache     *lru.Cache[uint64, searcher.Evaluation]
}

// step advances this game as far as possible without the evaluator:
// cached leaf evaluations are applied on the spot, completed searches
// play their move, finished games emit their record. Returns the next
// uncached request, or nil when the game is done and its slot is free.
func (gs *gameState) step(ctx context.Context, s *resolved, g *generatorState, resp *searcher.Response, updates chan<- Update, c *counter) (*searcher.Request, error) {
	if resp != nil {
		gs.cache.Add(resp.Board.Key(), resp.Eval)
	}

	for {
		req, done := gs.search.step(s, g.rng, resp)
		resp = nil
		if !done {
			if eval, hit := gs.cache.Get(req.Board.Key()); hit {
				c.cacheHits++
				r := req.Respond(eval)
				resp = &r
				continue
			}
			return req, nil
		}

		c.moves++
		finished, err := gs.searchDone(ctx, s, g, updates)
		if err != nil {
			return nil, err
		}
		if finished {
			return nil, nil
		}
	}
}

// searchDone converts a completed search into a played move and a
// recorded sample, then either finishes the game or moves its tree to
// the next position.
func (gs *gameState) searchDone(ctx context.Context, s *resolved, g *generatorState, updates chan<- Update) (bool, error) {
	tree := gs.search.tree

	netEval := gs.search.rootNetEval
	if netEval == nil {
		panic("search finished without a root evaluation")
	}
	searchEval := tree.Eval()

	selector := MoveSelector{Temperature: s.Temperature, ZeroTempMoveCount: s.ZeroTempMoveCount}
	picked := selector.Select(len(gs.positions), searchEval.Policy, g.rng)
	move := tree.ChildMove(picked)

	gs.positions = append(gs.positions, Position{
		Board:       tree.RootBoard(),
		ShouldStore: gs.search.isFullSearch,
		PlayedMove:  move,
		Visits:      tree.RootVisits(),
		NetEval:     *netEval,
		SearchEval:  searchEval,
	})

	next := tree.RootBoard()
	next.Play(move)
	outcome, over := next.Outcome()
	if !over && s.MaxGameLength > 0 && next.MoveCount() >= s.MaxGameLength {
		outcome, over = game.Draw(), true
	}

	if over {
		record := Record{Outcome: outcome, Positions: gs.positions}
		gs.positions = nil
		err := send(ctx, updates, FinishedGame{WorkerID: g.workerID, Index: gs.index, Record: record})
		return true, err
	}

	var nextTree *searcher.Tree
	if s.KeepTree {
		if kept, ok := tree.KeepMove(move); ok {
			nextTree = kept
		}
	}
	if nextTree == nil {
		nextTree = searcher.NewTree(next, s.drawDepth(next.MoveCount()))
	}
	gs.search = newSearchState(s, g.rng, nextTree)
	return false, nil
}

// searchState drives one tree through a full search: dirichlet noise
// after the root's first evaluation, then gather/apply cycles until
// the iteration budget is reached.
type searchState struct {
	tree           *searcher.Tree
	needsDirichlet bool
	isFullSearch   bool
	rootNetEval    *searcher.Evaluation
}

func newSearchState(s *resolved, rng *rand.Rand, tree *searcher.Tree) *searchState {
	return &searchState{
		tree:           tree,
		needsDirichlet: true,
		isFullSearch:   rng.Float64() < s.FullSearchProb,
	}
}

// step applies the response, if any, then gathers until it either has
// a request or the search budget is reached (done == true).
func (ss *searchState) step(s *resolved, rng *rand.Rand, resp *searcher.Response) (req *searcher.Request, done bool) {
	if resp != nil {
		ss.tree.Apply(s.TopMoves, *resp)
	}

	for {
		if ss.tree.RootVisits() > 0 && ss.needsDirichlet {
			// Snapshot the raw network evaluation before noise distorts
			// the priors.
			netEval := ss.tree.NetRootEvaluation()
			ss.rootNetEval = &netEval
			ss.addDirichletNoise(s, rng)
			ss.needsDirichlet = false
		}

		if ss.tree.RootVisits() >= s.targetIterations(ss.isFullSearch) {
			return nil, true
		}

		if req := ss.tree.Gather(s.weights, s.fpu); req != nil {
			return req, false
		}
	}
}

func (ss *searchState) addDirichletNoise(s *resolved, rng *rand.Rand) {
	if s.DirichletEps == 0 {
		return
	}
	n := ss.tree.RootChildren().Len()
	if n <= 1 {
		return
	}
	noise := sampleDirichlet(s.DirichletAlpha, n, rng)
	ss.tree.PerturbRootPriors(float32(s.DirichletEps), noise)
}

func send(ctx context.Context, updates chan<- Update, u Update) error {
	select {
	case updates <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
