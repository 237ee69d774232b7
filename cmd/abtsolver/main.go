// Command abtsolver runs the belief-tree search engine against a
// built-in demo grid-world problem, the structure of this command
// grounded on tabular's main.go: an init() flag block, a runApp() that
// loads config and drives the algorithm, and a main() that just
// reports runApp's error.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/niceyeti/abtsolver/config"
	"github.com/niceyeti/abtsolver/engine"
	"github.com/niceyeti/abtsolver/internal/fakemodel"
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/persist"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/telemetry"
)

var (
	dbg        *bool
	configPath *string
	outPath    *string
	seed       *int64
	steps      *int
	sweep      *int
)

func init() {
	dbg = flag.Bool("debug", false, "verbose, human-readable logging")
	configPath = flag.String("config", "./config.yaml", "path to the engine's SBT/problem config")
	outPath = flag.String("out", "", "optional path to persist the belief tree to on exit")
	seed = flag.Int64("seed", 1, "RNG seed")
	steps = flag.Int("steps", 20, "number of cycles to run, each an improvement phase followed by one runSim step")
	sweep = flag.Int("sweep", 0, "if > 1, run this many independent solvers concurrently (seed..seed+n-1) and report each's result instead of running a single solver")
	flag.Parse()
}

func runApp() error {
	log := telemetry.NewDevelopment()
	if !*dbg {
		log = telemetry.New()
	}
	defer log.Sync()

	// reloaded holds at most the latest reloaded config; the single-solver
	// loop below applies it between improvement phases.
	reloaded := make(chan *config.SearchConfig, 1)
	cfg, watcher, err := config.Watch(*configPath, func(updated *config.SearchConfig) {
		log.Info("config: reloaded", "path", *configPath)
		select {
		case <-reloaded:
		default:
		}
		reloaded <- updated
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	_ = watcher // kept alive for its fsnotify watch; see config.Watch doc

	if *sweep > 1 {
		seeds := make([]int64, *sweep)
		for i := range seeds {
			seeds[i] = *seed + int64(i)
		}
		results, err := RunSweep(context.Background(), *cfg, seeds, cfg.SBT.MaxTrials, log)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		for _, r := range results {
			log.Info("runApp: sweep result", "seed", r.Seed, "trials", r.Trials, "bestAction", r.BestAction, "q", r.QValue)
		}
		return nil
	}

	grid := fakemodel.New(8, 8, rng.New(*seed))
	solver := engine.New(grid, grid.ActionPool(), grid.ObservationPool(), *cfg, *seed, log)
	schedule, err := solver.LoadChangeSchedule("")
	if err != nil {
		return fmt.Errorf("loading change schedule: %w", err)
	}

	for step := 0; step < *steps; step++ {
		select {
		case updated := <-reloaded:
			solver.Reconfigure(*updated)
		default:
		}
		ran, err := solver.GenPolWithDeadline(2 * time.Second)
		if err != nil {
			return fmt.Errorf("genPol: %w", err)
		}
		action, ok := solver.GetBestAction()
		if !ok {
			log.Warn("runApp: no legal action at root", "step", step)
			break
		}
		log.Info("runApp: improved policy", "step", step, "trials", ran, "bestAction", action.String(), "q", solver.GetQValue())

		res, err := solver.RunSim(schedule)
		if err != nil {
			return fmt.Errorf("runSim: %w", err)
		}
		log.Info("runApp: ran real step", "step", step, "legal", res.Legal, "reward", res.Reward)
		if grid.IsTerminal(solver.CurrentState()) {
			log.Info("runApp: reached terminal state", "step", step)
			break
		}
	}

	if *outPath != "" {
		fs := afero.NewOsFs()
		if err := persist.Save(fs, *outPath, solver.Tree(), gridCodec{}); err != nil {
			return fmt.Errorf("persisting tree: %w", err)
		}
	}
	return nil
}

// gridCodec round-trips fakemodel.Observation through persist's text
// format.
type gridCodec struct{}

func (gridCodec) EncodeObservation(o model.Observation) string { return o.String() }

func (gridCodec) DecodeObservation(s string) (model.Observation, error) {
	var x, y int
	if _, err := fmt.Sscanf(s, "(%d,%d)", &x, &y); err != nil {
		return nil, fmt.Errorf("decoding observation %q: %w", s, err)
	}
	return fakemodel.Observation{X: x, Y: y}, nil
}

func main() {
	if err := runApp(); err != nil {
		fmt.Println(err)
	}
}
