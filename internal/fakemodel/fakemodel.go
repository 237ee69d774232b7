// Package fakemodel is a small deterministic grid-world Model,
// grounded on grid_world.State/Action's track layout (a width x height
// map of WALL/TRACK/FINISH cells) but stripped of velocity -- this
// package drives the engine's own package tests end to end (S2-S6) and
// is the demo problem cmd/abtsolver runs against.
package fakemodel

import (
	"fmt"
	"math"

	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/tree"
)

const (
	Wall   = 'W'
	Track  = 'o'
	Finish = '+'
)

// State is a grid cell position.
type State struct {
	X, Y int
}

func (s State) Equals(other model.State) bool {
	o, ok := other.(State)
	return ok && o.X == s.X && o.Y == s.Y
}

func (s State) Hash() uint64 {
	return uint64(s.X)<<32 | uint64(uint32(s.Y))
}

func (s State) DistanceTo(other model.State) float64 {
	o := other.(State)
	return math.Abs(float64(s.X-o.X)) + math.Abs(float64(s.Y-o.Y))
}

func (s State) String() string { return fmt.Sprintf("(%d,%d)", s.X, s.Y) }

// Action is one of the four grid moves, also usable as a discretized
// bin number 0..3.
type Action int

const (
	North Action = iota
	East
	South
	West
	NumActions
)

func (a Action) Equals(other model.Action) bool { return other.(Action) == a }
func (a Action) Hash() uint64                   { return uint64(a) }
func (a Action) BinNumber() (int, bool)         { return int(a), true }
func (a Action) String() string {
	switch a {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return "?"
	}
}

// Observation is a (possibly noisy) reported position.
type Observation struct {
	X, Y int
}

func (o Observation) Equals(other model.Observation) bool {
	return other.(Observation) == o
}
func (o Observation) Hash() uint64 {
	return uint64(o.X)<<32 | uint64(uint32(o.Y))
}
func (o Observation) String() string { return fmt.Sprintf("(%d,%d)", o.X, o.Y) }

// Grid is a small deterministic POMDP: move on a grid of cells, with a
// per-cell obstacle overlay the change engine can flip at runtime
// (spec.md §4.8), and an observation that reports position exactly
// unless ObserveNoise is set, in which case it's off by one cell with
// some probability -- enough non-determinism to exercise the
// particle-replenishment path (StatesFromObservation). Its
// ObservationPool is always the discrete one; ApproxObsMapping is not
// used.
type Grid struct {
	Width, Height  int
	Obstacle       map[State]bool
	Start          State
	Goal           State
	ObserveNoise   float64
	RNG            *rng.Source
	RewardOverride map[State]float64

	scheduledObstacles map[int64][]State
	scheduledRewards   map[int64]map[State]float64
}

// New builds a Width x Height grid with no obstacles, start at (0,0)
// and goal at (width-1, height-1).
func New(width, height int, r *rng.Source) *Grid {
	return &Grid{
		Width:    width,
		Height:   height,
		Obstacle: make(map[State]bool),
		Start:    State{0, 0},
		Goal:     State{width - 1, height - 1},
		RNG:      r,
	}
}

func (g *Grid) SampleInitialState() model.State { return g.Start }

func (g *Grid) IsTerminal(s model.State) bool {
	return s.(State) == g.Goal
}

func (g *Grid) inBounds(s State) bool {
	return s.X >= 0 && s.X < g.Width && s.Y >= 0 && s.Y < g.Height
}

func (g *Grid) move(s State, a Action) State {
	switch a {
	case North:
		s.Y++
	case East:
		s.X++
	case South:
		s.Y--
	case West:
		s.X--
	}
	return s
}

func (g *Grid) Step(s model.State, a model.Action) (model.StepResult, error) {
	cur := s.(State)
	next := g.move(cur, a.(Action))
	if !g.inBounds(next) || g.Obstacle[next] {
		return model.StepResult{Legal: false}, nil
	}
	obs := Observation{X: next.X, Y: next.Y}
	if g.ObserveNoise > 0 && g.RNG.Float64() < g.ObserveNoise {
		obs.X++
	}
	return model.StepResult{
		NextState:   next,
		Observation: obs,
		Reward:      g.Reward(next, a),
		Legal:       true,
	}, nil
}

func (g *Grid) Reward(s model.State, a model.Action) float64 {
	st := s.(State)
	if r, ok := g.RewardOverride[st]; ok {
		return r
	}
	if st == g.Goal {
		return 10
	}
	return -1
}

func (g *Grid) SolveHeuristic(s model.State) float64 {
	st := s.(State)
	dist := math.Abs(float64(st.X-g.Goal.X)) + math.Abs(float64(st.Y-g.Goal.Y))
	return 10 - dist
}

func (g *Grid) DefaultVal() float64 { return -1 }

func (g *Grid) FinalReward(s model.State) float64 {
	if g.IsTerminal(s) {
		return 10
	}
	return 0
}

func (g *Grid) Discount() float64 { return 0.95 }

func (g *Grid) IllegalPenalty() float64 { return -10 }

// StatesFromObservation proposes every in-bounds, non-obstacle cell
// within one cell of the observation as a replenishment particle,
// matching the ObserveNoise off-by-one model above.
func (g *Grid) StatesFromObservation(a model.Action, o model.Observation, hint model.State) []model.State {
	obs := o.(Observation)
	var out []model.State
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			cand := State{X: obs.X + dx, Y: obs.Y + dy}
			if g.inBounds(cand) && !g.Obstacle[cand] {
				out = append(out, cand)
			}
		}
	}
	return out
}

func (g *Grid) LoadChanges(path string) (map[int64][]model.ChangeKind, error) {
	return map[int64][]model.ChangeKind{}, nil
}

// ScheduleObstacle registers that at simulated time t, ApplyChange
// should toggle cell s's obstacle status. The change engine calls
// ApplyChange with a nil region (it has no region of its own to pass --
// only a simulated time and a kind, per Model.LoadChanges' schedule
// shape), so a model that mutates regions on a schedule must remember
// which region each (time, kind) pair affects.
func (g *Grid) ScheduleObstacle(t int64, s State) {
	if g.scheduledObstacles == nil {
		g.scheduledObstacles = make(map[int64][]State)
	}
	g.scheduledObstacles[t] = append(g.scheduledObstacles[t], s)
}

// ScheduleRewardChange registers that at simulated time t, ApplyChange
// should set cell s's reward override to newReward, the same
// nil-region fallback pattern ScheduleObstacle uses (the change engine
// never passes region information of its own).
func (g *Grid) ScheduleRewardChange(t int64, s State, newReward float64) {
	if g.scheduledRewards == nil {
		g.scheduledRewards = make(map[int64]map[State]float64)
	}
	if g.scheduledRewards[t] == nil {
		g.scheduledRewards[t] = make(map[State]float64)
	}
	g.scheduledRewards[t][s] = newReward
}

// ApplyChange mutates either the obstacle overlay (ChangeObstacle) or
// the reward override map (ChangeReward) for every state in region, or
// for this grid's scheduled region at time t when region is nil. Any
// other kind is a no-op, since this model has no transitions/states to
// add or delete beyond its fixed grid.
func (g *Grid) ApplyChange(t int64, region []model.State, kind model.ChangeKind) ([]model.ChangeRecord, error) {
	switch {
	case kind.Has(model.ChangeObstacle):
		if region == nil {
			for _, s := range g.scheduledObstacles[t] {
				region = append(region, s)
			}
		}
		for _, s := range region {
			st := s.(State)
			g.Obstacle[st] = !g.Obstacle[st]
		}
		return []model.ChangeRecord{{Time: t, Region: region, Kind: kind}}, nil

	case kind.Has(model.ChangeReward):
		if g.RewardOverride == nil {
			g.RewardOverride = make(map[State]float64)
		}
		if region == nil {
			for s := range g.scheduledRewards[t] {
				region = append(region, s)
			}
		}
		for _, s := range region {
			st := s.(State)
			if v, ok := g.scheduledRewards[t][st]; ok {
				g.RewardOverride[st] = v
			}
		}
		return []model.ChangeRecord{{Time: t, Region: region, Kind: kind}}, nil

	default:
		return nil, nil
	}
}

// ActionPool returns the DiscretizedActionPool for this grid's fixed
// four-action space.
func (g *Grid) ActionPool() tree.ActionPool {
	return &tree.DiscretizedActionPool{
		NumBins:     int(NumActions),
		BinToAction: func(bin int) model.Action { return Action(bin) },
	}
}

// ObservationPool returns the DiscreteObservationPool this grid uses
// whatever ObserveNoise is (noisy reports stay enumerable cells).
func (g *Grid) ObservationPool() tree.ObservationPool {
	return tree.DiscreteObservationPool{}
}
