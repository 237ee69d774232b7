// Package engine wires every component (statepool, history, tree,
// search, backup, change) into the top-level Solver the host program
// talks to, grounded on the teacher's main.go/runApp wiring and
// server.Server's role as the thing that owns every collaborator and
// exposes the few operations a caller needs.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/niceyeti/abtsolver/backup"
	"github.com/niceyeti/abtsolver/change"
	"github.com/niceyeti/abtsolver/config"
	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/search"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

// Solver is the engine's single top-level handle: one Model, one
// StatePool, one History store, one belief Tree, one search Driver, one
// change Engine, all sharing one RNG (spec.md §5's single-threaded,
// single-RNG scheduling model).
type Solver struct {
	model   model.Model
	states  *statepool.Pool
	history *history.Store
	tree    *tree.Tree
	driver  *search.Driver
	change  *change.Engine
	cfg     config.SearchConfig
	rng     *rng.Source
	log     *telemetry.Logger

	simTime      int64
	currentState model.State
}

// ErrNoLegalAction is returned by RunSim when the root has no visited
// action entries to act on (genPol was never run, or every entry is
// illegal).
var ErrNoLegalAction = errors.New("engine: no legal action at root")

// New constructs a Solver. actions/observations are the Model's
// ActionPool/ObservationPool factories (spec.md §4.4); seed fixes the
// engine's single RNG for deterministic runs (spec.md §8 property 7).
func New(m model.Model, actions tree.ActionPool, observations tree.ObservationPool, cfg config.SearchConfig, seed int64, log *telemetry.Logger) *Solver {
	r := rng.New(seed)
	states := statepool.New(log)
	store := history.New()
	t := tree.New(actions, observations, r, log)
	driver := search.New(m, states, store, t, r, cfg.SearchDriverConfig(), log)
	changeEngine := change.New(m, states, store, driver, cfg.Problem.Discount, log)

	return &Solver{
		model:        m,
		states:       states,
		history:      store,
		tree:         t,
		driver:       driver,
		change:       changeEngine,
		cfg:          cfg,
		rng:          r,
		log:          log,
		currentState: m.SampleInitialState(),
	}
}

// Reconfigure applies a freshly loaded SearchConfig's tunables in
// place, the hook a config.Watcher's hot-reload callback invokes
// mid-run (SPEC_FULL.md §6.3 supplement).
func (s *Solver) Reconfigure(cfg config.SearchConfig) {
	s.cfg = cfg
	s.driver.Cfg = cfg.SearchDriverConfig()
	s.change.Gamma = cfg.Problem.Discount
}

// GenPol runs up to cfg.SBT.MaxTrials search trials from the tree's
// root, backing up each one as it completes, stopping early if ctx is
// canceled (spec.md §5's cumulative time/trial budget cancellation).
// Returns the number of trials actually run.
func (s *Solver) GenPol(ctx context.Context) (int, error) {
	root := s.tree.Root()
	ran := 0
	for i := 0; i < s.cfg.SBT.MaxTrials; i++ {
		select {
		case <-ctx.Done():
			return ran, nil
		default:
		}

		initial := s.model.SampleInitialState()
		info := s.states.CreateOrGetInfo(initial)
		seq, err := s.driver.SingleSearch(root, info, 0, s.cfg.Problem.Discount)
		if err != nil {
			return ran, err
		}
		if err := backup.Backup(seq, s.cfg.Problem.Discount, s.log); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// GenPolWithDeadline runs GenPol under a wall-clock budget, the
// cumulative time budget named in spec.md §5 alongside the trial-count
// budget GenPol itself already enforces.
func (s *Solver) GenPolWithDeadline(deadline time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	return s.GenPol(ctx)
}

// RunSim advances the real simulated state by one step: it processes
// every change record scheduled for the current simulated time (spec.md
// §5's ordering guarantee — changes apply before the next action is
// selected), takes the root's current best action against the real
// state, and advances simTime. An illegal step leaves currentState
// unchanged and reports IllegalPenalty() as the reward, mirroring the
// engine's own model-level error handling (spec.md §7).
func (s *Solver) RunSim(schedule map[int64][]model.ChangeKind) (model.StepResult, error) {
	if err := s.change.Apply(s.simTime, schedule); err != nil {
		return model.StepResult{}, err
	}

	action, ok := s.GetBestAction()
	if !ok {
		return model.StepResult{}, ErrNoLegalAction
	}

	res, err := s.model.Step(s.currentState, action)
	if err != nil {
		return model.StepResult{}, err
	}
	if !res.Legal {
		res.Reward = s.model.IllegalPenalty()
	} else {
		s.currentState = res.NextState
		s.replenish(action, res)
	}
	s.simTime++

	return res, nil
}

// replenish tops up the belief node reached by the real step just taken
// with fresh particles when its set has fallen under the configured
// cap, using the Model's own observation model to propose replacement
// states (spec.md §6.1's statesFromObservation, "for particle
// replenishment" -- RunSim's real-world step is this engine's only
// source of a live observation to replenish from).
func (s *Solver) replenish(action model.Action, res model.StepResult) {
	target := s.cfg.SBT.NParticles
	if target <= 0 {
		return
	}

	node, _ := s.tree.Root().CreateOrGetChild(action, res.Observation, nil)
	if node.NumParticles() >= target {
		return
	}

	candidates := s.model.StatesFromObservation(action, res.Observation, res.NextState)
	if len(candidates) == 0 {
		return
	}

	for node.NumParticles() < target {
		st := candidates[s.rng.Intn(len(candidates))]
		info := s.states.CreateOrGetInfo(st)
		seq := s.history.NewSequence()
		s.history.AppendEntry(seq, info, nil, res.Observation, 0, 1.0, node)
	}
}

// SimTime returns the engine's current simulated time counter, the
// clock RunSim and ApplyChange's schedule keys are measured against.
func (s *Solver) SimTime() int64 { return s.simTime }

// CurrentState returns the real state RunSim is currently tracking.
func (s *Solver) CurrentState() model.State { return s.currentState }

// GetBestAction returns the root's current best action, per spec.md
// §4.3.
func (s *Solver) GetBestAction() (model.Action, bool) {
	return s.tree.Root().GetBestAction()
}

// GetQValue returns the root's current best mean Q.
func (s *Solver) GetQValue() float64 {
	return s.tree.Root().GetQValue()
}

// ApplyChange runs one change-engine cycle for simulated time t against
// the given schedule (spec.md §4.8).
func (s *Solver) ApplyChange(t int64, schedule map[int64][]model.ChangeKind) error {
	return s.change.Apply(t, schedule)
}

// LoadChangeSchedule delegates to the Model's own schedule source
// (spec.md §6.1, loadChanges).
func (s *Solver) LoadChangeSchedule(path string) (map[int64][]model.ChangeKind, error) {
	return s.model.LoadChanges(path)
}

// Tree exposes the underlying belief tree, e.g. for persist.Save.
func (s *Solver) Tree() *tree.Tree { return s.tree }

// States exposes the state pool, e.g. for diagnostics or persistence
// companions that need to resolve a StateInfo by id.
func (s *Solver) States() *statepool.Pool { return s.states }

// History exposes the history store.
func (s *Solver) History() *history.Store { return s.history }
