package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"selfzero/game"
	"selfzero/nn"
	"selfzero/searcher"
	"selfzero/selfplay"
)

type config struct {
	// Workers is the number of generator goroutines.
	Workers int `yaml:"workers"`
	// Games stops the run after this many finished games; zero runs
	// until interrupted.
	Games int `yaml:"games"`
	// Server is the inference server base URL; empty uses a uniform
	// evaluator, which is only useful for pipeline testing.
	Server   string            `yaml:"server"`
	Selfplay selfplay.Settings `yaml:"selfplay"`
}

func defaultConfig() config {
	return config{
		Workers:  2,
		Selfplay: selfplay.DefaultSettings(),
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("self-play failed")
	}
	log.Info().Msg("done")
}

func run(ctx context.Context, cfg config) error {
	var eval searcher.Evaluator
	if cfg.Server != "" {
		eval = nn.NewClient(cfg.Server, cfg.Selfplay.BatchSize)
	} else {
		log.Warn().Msg("no inference server configured, using uniform evaluator")
		eval = nn.NewUniform(cfg.Selfplay.BatchSize)
	}

	commands := make([]chan selfplay.Command, cfg.Workers)
	updates := make(chan selfplay.Update, cfg.Workers)

	group, gctx := errgroup.WithContext(ctx)
	for i := range commands {
		commands[i] = make(chan selfplay.Command, 4)
		commands[i] <- selfplay.NewSettings(cfg.Selfplay)
		commands[i] <- selfplay.NewEvaluator(eval)

		workerID := i
		cmds := commands[i]
		group.Go(func() error {
			return selfplay.Run(gctx, workerID, startPosition, cmds, updates)
		})
	}

	// The supervisor must outlive the workers: a worker mid-tick blocks
	// on the update channel until someone reads it. The group context is
	// canceled once Wait returns, which lets the drain loop exit.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		supervise(gctx, cfg, commands, updates)
	}()

	err := group.Wait()
	<-drained
	return err
}

func startPosition() game.Board {
	return game.NewConnectFour()
}

// supervise aggregates worker updates and sends every worker a stop
// command once the game quota is reached. It keeps draining updates
// until the context is canceled so no worker ever blocks on a send.
func supervise(ctx context.Context, cfg config, commands []chan selfplay.Command, updates <-chan selfplay.Update) {
	var finished, moves, evals, hits uint64
	var stopSent bool
	lastReport := time.Now()

	for {
		var u selfplay.Update
		select {
		case u = <-updates:
		case <-ctx.Done():
			return
		}

		switch u := u.(type) {
		case selfplay.Progress:
			moves += u.Moves
			evals += u.RealEvals
			hits += u.CacheHits
		case selfplay.FinishedGame:
			finished++
			log.Debug().
				Int("worker", u.WorkerID).
				Uint64("game", u.Index).
				Int("moves", len(u.Record.Positions)).
				Msg("game finished")
		}

		if time.Since(lastReport) >= 10*time.Second {
			hitRate := float64(hits) / float64(max(evals+hits, 1))
			log.Info().
				Uint64("games", finished).
				Uint64("moves", moves).
				Uint64("evals", evals).
				Float64("cache-hit-rate", hitRate).
				Msg("progress")
			lastReport = time.Now()
		}

		if !stopSent && cfg.Games > 0 && finished >= uint64(cfg.Games) {
			log.Info().Uint64("games", finished).Msg("game quota reached, stopping workers")
			for _, cmds := range commands {
				cmds <- selfplay.Stop()
			}
			stopSent = true
		}
	}
}
