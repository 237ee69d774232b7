// Package model defines the external collaborator contract the search
// engine talks to. The engine never imports a concrete problem package;
// it only ever holds these interfaces, per spec.md "the engine talks to
// a Model interface only."
package model

// State is an opaque, problem-specific world state. Implementations must
// be comparable by value semantics through Equals/Hash so that the
// StatePool can canonicalize them.
type State interface {
	Equals(other State) bool
	Hash() uint64
	// DistanceTo is used by the POL rollout strategy's nearest-neighbor
	// search (distL1Independent) and must be a true metric over states
	// sharing a problem instance.
	DistanceTo(other State) float64
	String() string
}

// Action is an opaque, problem-specific decision. BinNumber identifies
// the discretized slot an action belongs to; ok is false for actions
// drawn from a continuous action pool, which have no fixed bin.
type Action interface {
	Equals(other Action) bool
	Hash() uint64
	BinNumber() (bin int, ok bool)
	String() string
}

// Observation is an opaque, problem-specific percept.
type Observation interface {
	Equals(other Observation) bool
	Hash() uint64
	String() string
}

// ChangeKind is a bitmask flag describing how a model change affected a
// region of state space. Values mirror the StateInfo change-flag bitmask
// in spec.md §3.
type ChangeKind uint8

const (
	ChangeTransition  ChangeKind = 1 << iota // TRANSITION
	ChangeReward                             // REWARD
	ChangeAdded                              // ADDSTATE
	ChangeDeleted                            // DELSTATE
	ChangeObservation                        // OBSERVATION
	ChangeObstacle                           // OBSTACLE
)

// Has reports whether k and flags share any bit.
func (k ChangeKind) Has(flags ChangeKind) bool {
	return flags&k != 0
}

// StepResult is the outcome of simulating one action from one state.
type StepResult struct {
	NextState   State
	Observation Observation
	Reward      float64
	Legal       bool
}

// ChangeRecord is one applied model mutation, as returned by
// ApplyChange and consumed by the change engine (C8).
type ChangeRecord struct {
	Time   int64
	Region []State
	Kind   ChangeKind
}

// Model is the sole external collaborator of the search engine. All
// problem-specific logic (RockSample, Tag, UnderwaterNav, ...) lives
// behind this interface; the engine is otherwise fully generic.
type Model interface {
	// SampleInitialState draws a state from the initial belief.
	SampleInitialState() State
	// IsTerminal is a pure predicate.
	IsTerminal(s State) bool
	// Step is stochastic. When the returned StepResult.Legal is false,
	// the engine ignores NextState and substitutes a self-loop with
	// IllegalPenalty(), per spec.md §4.6 step 3; the Observation (nil if
	// unset) is still recorded as the step's observation.
	Step(s State, a Action) (StepResult, error)
	// Reward is pure; action may be nil when only a terminal/state-only
	// reward is wanted.
	Reward(s State, a Action) float64
	// SolveHeuristic returns an upper-bound or admissible value estimate
	// used by the RANDHEURISTIC rollout strategy.
	SolveHeuristic(s State) float64
	// DefaultVal is the fallback Q returned when a belief has no legal
	// actions at all (forced terminal).
	DefaultVal() float64
	// FinalReward is the reward attached to a terminal/depth-truncated
	// history entry; implementations typically return 0 at a plain
	// depth cutoff and a problem-specific value at a true terminal.
	FinalReward(s State) float64
	// Discount is the constant per-step discount factor, gamma.
	Discount() float64
	// IllegalPenalty is the reward substituted for an illegal action.
	IllegalPenalty() float64
	// StatesFromObservation proposes replenishment particles consistent
	// with having taken a and observed o, optionally seeded by hint.
	StatesFromObservation(a Action, o Observation, hint State) []State
	// LoadChanges reads a change schedule from an external source,
	// keyed by simulated time step.
	LoadChanges(path string) (map[int64][]ChangeKind, error)
	// ApplyChange mutates the model's own parameters in place for the
	// given region and kind, returning the set of (region, kind) pairs
	// actually affected (a model may narrow or widen the request).
	ApplyChange(t int64, region []State, kind ChangeKind) ([]ChangeRecord, error)
}
