package search

import (
	"github.com/niceyeti/abtsolver/rng"
)

// Strategy is one of the two rollout heuristics a frontier can bootstrap
// from, spec.md §4.6.
type Strategy int

const (
	// RandHeuristic bootstraps via Model.SolveHeuristic.
	RandHeuristic Strategy = iota
	// POL bootstraps by greedily following a nearby belief node's
	// learned best-action policy.
	POL
)

func (s Strategy) String() string {
	if s == POL {
		return "POL"
	}
	return "RANDHEURISTIC"
}

// Bandit is the small two-armed bandit that chooses between rollout
// strategies by a weighted coin, with weights updated from observed
// improvement (spec.md §4.6, DESIGN NOTES §9 "Strategy-weighted
// rollout... keep this as a dedicated substructure with its own unit
// tests"). Kept as its own type, independent of Driver, for exactly
// that reason.
type Bandit struct {
	weight      [2]float64
	probability [2]float64
	useCount    [2]int64
	timeUsed    [2]float64
}

// NewBandit returns a bandit with equal initial weight on both arms.
func NewBandit() *Bandit {
	return &Bandit{
		weight:      [2]float64{1, 1},
		probability: [2]float64{0.5, 0.5},
	}
}

// Choose draws a strategy according to the current arm probabilities.
func (b *Bandit) Choose(r *rng.Source) Strategy {
	if r.Float64() < b.probability[RandHeuristic] {
		return RandHeuristic
	}
	return POL
}

// UpdateStrategyProbabilities folds an observed improvement (the
// rollout's value estimate relative to the model's default baseline)
// into strategy s's weight, then renormalizes both arms' probabilities.
// A strategy that keeps producing better bootstraps is tried more
// often, mirroring an upper-confidence-style bandit without the
// variance bookkeeping a full UCB1 arm would need.
func (b *Bandit) UpdateStrategyProbabilities(s Strategy, valImprovement float64) {
	b.useCount[s]++
	// Clamp the improvement's contribution so one wildly lucky rollout
	// can't collapse the other arm's probability to zero.
	contribution := valImprovement
	if contribution < -10 {
		contribution = -10
	} else if contribution > 10 {
		contribution = 10
	}
	b.weight[s] += contribution
	if b.weight[s] < 0.01 {
		b.weight[s] = 0.01
	}

	total := b.weight[0] + b.weight[1]
	b.probability[0] = b.weight[0] / total
	b.probability[1] = 1 - b.probability[0]
}

// Probability returns strategy s's current selection probability.
func (b *Bandit) Probability(s Strategy) float64 { return b.probability[s] }

// UseCount returns how many times strategy s has been chosen.
func (b *Bandit) UseCount(s Strategy) int64 { return b.useCount[s] }
