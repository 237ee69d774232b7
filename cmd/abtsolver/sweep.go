package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"github.com/niceyeti/abtsolver/config"
	"github.com/niceyeti/abtsolver/engine"
	"github.com/niceyeti/abtsolver/internal/fakemodel"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/telemetry"
)

// sweepHeartbeat is how often RunSweep logs how many of its solvers
// have finished, the same resolution tabular's main.go uses for its
// own training-loop heartbeat.
const sweepHeartbeat = 2 * time.Second

// sweepResult is one independent solver's outcome from RunSweep.
type sweepResult struct {
	Seed       int64
	Trials     int
	BestAction string
	QValue     float64
}

// RunSweep builds one Solver per seed in seeds, each over its own Model
// instance, StatePool and BeliefTree, and runs GenPol on all of them
// concurrently via errgroup (SPEC_FULL.md §5/§9's multi-solver host
// supplement). Each goroutine owns a disjoint Solver, so this adds no
// concurrency inside any single solver's cooperative scheduling loop.
func RunSweep(ctx context.Context, cfg config.SearchConfig, seeds []int64, trials int, log *telemetry.Logger) ([]sweepResult, error) {
	results := make([]sweepResult, len(seeds))

	done := make(chan struct{})
	defer close(done)
	var completed int32
	go func() {
		for range channerics.NewTicker(done, sweepHeartbeat) {
			log.Info("sweep: progress", "completed", atomic.LoadInt32(&completed), "total", len(seeds))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			sweepCfg := cfg
			sweepCfg.SBT.MaxTrials = trials

			grid := fakemodel.New(8, 8, rng.New(seed))
			solver := engine.New(grid, grid.ActionPool(), grid.ObservationPool(), sweepCfg, seed, log)

			ran, err := solver.GenPol(gctx)
			if err != nil {
				return fmt.Errorf("sweep seed %d: %w", seed, err)
			}

			action, ok := solver.GetBestAction()
			label := "<none>"
			if ok {
				label = action.String()
			}
			results[i] = sweepResult{
				Seed:       seed,
				Trials:     ran,
				BestAction: label,
				QValue:     solver.GetQValue(),
			}
			atomic.AddInt32(&completed, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
