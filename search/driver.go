// Package search implements C6: the single-trial belief-tree search
// loop (UCB1 action selection, expansion, rollout) and the
// strategy-weighted bandit that picks between the two rollout
// heuristics. Grounded on the teacher's single-episode rollout loop in
// reinforcement/learning.go (runEpisode's select-step-append loop),
// generalized from a flat-table argmax to UCB1 over a belief node's
// action mapping and from a plain terminal stop to the tree's
// expansion/rollout split.
package search

import (
	"math"

	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

// Driver runs individual search trials against a model, a state pool,
// a history store and a belief tree, per spec.md §4.6.
type Driver struct {
	Model  model.Model
	States *statepool.Pool
	Store  *history.Store
	Tree   *tree.Tree
	RNG    *rng.Source
	Cfg    Config
	Bandit *Bandit
	Log    *telemetry.Logger
}

// New constructs a Driver with a fresh strategy bandit.
func New(m model.Model, states *statepool.Pool, store *history.Store, t *tree.Tree, r *rng.Source, cfg Config, log *telemetry.Logger) *Driver {
	return &Driver{
		Model:  m,
		States: states,
		Store:  store,
		Tree:   t,
		RNG:    r,
		Cfg:    cfg,
		Bandit: NewBandit(),
		Log:    log,
	}
}

// SingleSearch runs one simulated trial from startNode/startInfo at
// startDepth, appending a freshly allocated HistorySequence to the
// driver's history store and returning it. Implements spec.md §4.6
// steps 1-6 plus rollout.
//
// Every appended entry carries an action except the sequence's last
// entry when the trial ends by running out of discount budget, reaching
// a terminal state, or finding no legal action to take, rather than by
// expansion (spec.md §4.6 step 6, "append a terminal entry... and
// stop"): that closing entry has no associated action, so backup skips
// it when attributing visits to a mapping entry. Its reward is
// FinalReward at a terminal state, DefaultVal when no action could be
// selected, and 0 at a discount cutoff. This also covers the degenerate case of a
// trial that starts at an already-terminal state -- the while-loop
// guard in step 2 is false on the very first check, so the loop body
// never runs and the trial immediately falls through to the single
// closing entry, producing a length-1 sequence with no action
// involved at all.
func (d *Driver) SingleSearch(startNode *tree.BeliefNode, startInfo *statepool.StateInfo, startDepth int, gamma float64) (*history.HistorySequence, error) {
	seq := d.Store.NewSequence()
	if err := d.Resume(seq, startNode, startInfo, startDepth, gamma); err != nil {
		return nil, err
	}
	return seq, nil
}

// Resume runs a trial identical to SingleSearch but appends its
// entries onto an already-existing sequence instead of allocating a
// new one. Used by the change engine to continue a truncated sequence
// from its restored belief/state after an invalid suffix has been
// removed (spec.md §4.8 step 5, "resume simulation from index s by
// invoking the search driver with the restored belief/state").
func (d *Driver) Resume(seq *history.HistorySequence, startNode *tree.BeliefNode, startInfo *statepool.StateInfo, startDepth int, gamma float64) error {
	current := startNode
	state := startInfo.State()
	depth := startDepth
	discount := math.Pow(gamma, float64(depth))

	expanded := false
	forced := false
	var frontierState model.State
	var frontierDiscount float64
	var frontierDepth int

	for discount >= d.Cfg.DepthThreshold && !d.Model.IsTerminal(state) {
		action, isExpansion, ok := d.selectAction(current)
		if !ok {
			// Forced terminal: no legal action exists at all.
			forced = true
			break
		}

		result, err := d.Model.Step(state, action)
		if err != nil {
			return err
		}
		reward := result.Reward
		nextState := result.NextState
		if !result.Legal {
			reward = d.Model.IllegalPenalty()
			nextState = state
		}

		info := d.States.CreateOrGetInfo(state)
		d.Store.AppendEntry(seq, info, action, result.Observation, reward, discount, current)

		if isExpansion {
			expanded = true
			frontierState = nextState
			frontierDiscount = discount * gamma
			frontierDepth = depth + 1
			break
		}

		child, _ := current.CreateOrGetChild(action, result.Observation, nil)
		current = child
		state = nextState
		depth++
		discount *= gamma
	}

	if !expanded {
		closingReward := 0.0
		if d.Model.IsTerminal(state) {
			closingReward = d.Model.FinalReward(state)
		} else if forced {
			closingReward = d.Model.DefaultVal()
		}
		info := d.States.CreateOrGetInfo(state)
		d.Store.AppendEntry(seq, info, nil, nil, closingReward, discount, current)
		return nil
	}

	strategy := d.Bandit.Choose(d.RNG)
	estimate := d.rollout(strategy, current, frontierState, frontierDepth, frontierDiscount, gamma)
	seq.Last().SetBootstrap(estimate)

	improvement := estimate - d.Model.DefaultVal()
	d.Bandit.UpdateStrategyProbabilities(strategy, improvement)

	return nil
}

// selectAction implements spec.md §4.6 step 2a/2b: prefer an untried
// legal action, else fall back to UCB1 over visited legal entries.
func (d *Driver) selectAction(node *tree.BeliefNode) (action model.Action, isExpansion bool, ok bool) {
	if a, ok := node.Mapping().GetNextActionToTry(); ok {
		return a, true, true
	}
	a, ok := d.ucbSelect(node)
	return a, false, ok
}

// ucbSelect implements UCB(n) = argmax_e (e.meanQ + c*sqrt(ln(total)/e.visits))
// over visited legal entries, ties broken by lowest bin index (spec.md
// §4.6 step 2b). Mapping.Entries() returns discretized entries in
// increasing bin order, so only replacing the incumbent on a strict
// improvement gives the lowest-bin tie-break for free.
func (d *Driver) ucbSelect(node *tree.BeliefNode) (model.Action, bool) {
	mapping := node.Mapping()
	total := mapping.TotalVisitCount()
	if total <= 0 {
		return nil, false
	}
	lnTotal := math.Log(float64(total))

	var best *tree.Entry
	bestScore := math.Inf(-1)
	for _, e := range mapping.Entries() {
		if !e.Legal || e.Visits == 0 {
			continue
		}
		score := e.MeanQ() + d.Cfg.ExploreCoef*math.Sqrt(lnTotal/float64(e.Visits))
		if best == nil || score > bestScore {
			best = e
			bestScore = score
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Action, true
}

// rollout dispatches to the chosen strategy's bootstrap estimate for
// the frontier reached by the expansion step (spec.md §4.6, the
// "rollout from the frontier" paragraph).
func (d *Driver) rollout(strategy Strategy, parent *tree.BeliefNode, state model.State, depth int, discount float64, gamma float64) float64 {
	if strategy == RandHeuristic {
		return d.Model.SolveHeuristic(state)
	}
	return d.rolloutPOL(parent, state, discount, gamma)
}

// rolloutPOL implements the POL rollout strategy: find a near-neighbor
// belief node via distL1Independent (bounded by MaxDistTry candidates
// and accepted within DistThreshold), then greedily follow its
// best-action chain from the real frontier state for up to the
// remaining discount budget, accumulating discounted reward. Falls
// back to the RANDHEURISTIC estimate if no neighbor is found, since a
// rollout must always produce some bootstrap value.
func (d *Driver) rolloutPOL(parent *tree.BeliefNode, state model.State, discount float64, gamma float64) float64 {
	nn, ok := d.nearestNeighbor(parent)
	if !ok {
		return d.Model.SolveHeuristic(state)
	}

	var total float64
	disc := 1.0
	node := nn
	for discount*disc >= d.Cfg.DepthThreshold && !d.Model.IsTerminal(state) {
		action, ok := node.GetBestAction()
		if !ok {
			break
		}
		result, err := d.Model.Step(state, action)
		if err != nil {
			break
		}
		reward := result.Reward
		nextState := result.NextState
		if !result.Legal {
			reward = d.Model.IllegalPenalty()
			nextState = state
		}
		total += disc * reward
		disc *= gamma

		child, ok := node.GetChild(action, result.Observation)
		if !ok {
			break
		}
		node = child
		state = nextState
	}
	return total
}

// nearestNeighbor samples up to MaxDistTry candidate belief nodes from
// the tree (other than parent itself), stopping at the first one within
// DistThreshold and returning the closest seen if it is within
// DistThreshold (ok=false when none is), per spec.md
// §4.6's "early termination after maxDistTry candidates and a distance
// threshold distTh." Uses and refreshes parent's near-neighbor cache
// (spec.md §4.5) so repeated rollouts from the same frontier don't
// redo the search every time.
func (d *Driver) nearestNeighbor(parent *tree.BeliefNode) (*tree.BeliefNode, bool) {
	if cached, ok := parent.NearestNeighbor(); ok {
		return cached, true
	}

	candidates := d.Tree.SampleCandidateNodes(parent, d.Cfg.MaxDistTry, d.RNG)
	var best *tree.BeliefNode
	bestDist := math.Inf(1)
	for _, c := range candidates {
		if c.NumParticles() == 0 {
			continue
		}
		dist := parent.DistL1Independent(c)
		if dist < bestDist {
			best = c
			bestDist = dist
		}
		if dist <= d.Cfg.DistThreshold {
			break
		}
	}
	if best == nil || bestDist > d.Cfg.DistThreshold {
		return nil, false
	}
	parent.SetNearestNeighbor(best)
	return best, true
}
