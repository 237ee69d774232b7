package tree

import (
	"math"

	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/telemetry"
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// maxPairwiseComparisons bounds the n*m work done by distL1Independent;
// beyond this, spec.md §7 classifies the comparison as a "recoverable/
// logged" pairwise-comparison explosion, and the conservative fallback
// (treat the candidate as not a near neighbor) is taken instead.
const maxPairwiseComparisons = 1_000_000

// BeliefNode is a node in the search tree representing a distribution
// over states consistent with a history prefix (C5). Identity is a
// monotonically increasing integer ID; it owns a particle set and an
// ActionMapping, and carries the bookkeeping the POL rollout strategy
// and change-repair machinery need (near-neighbor cache, head/tail
// sequence counts), per the supplement in SPEC_FULL.md §3 grounded on
// original_source/src/solver/BeliefNode.hpp.
type BeliefNode struct {
	id       int64
	particles *particleSet
	mapping  Mapping

	tLastChange int64 // logical tick, bumped on every particle add/remove
	tNNComp     int64 // logical tick at which nnCache was last validated
	nnCache     *BeliefNode

	numberOfHeads int64 // sequences starting at this node
	numberOfTails int64 // sequences ending at this node

	log *telemetry.Logger
}

// ID returns this node's identity.
func (b *BeliefNode) ID() int64 { return b.id }

// Mapping returns this node's action mapping.
func (b *BeliefNode) Mapping() Mapping { return b.mapping }

// NumParticles returns the current particle count.
func (b *BeliefNode) NumParticles() int { return b.particles.size() }

// Particles returns a snapshot of every particle owned by this node.
func (b *BeliefNode) Particles() []Particle { return b.particles.all() }

// AddParticle adds p to this node's particle set and bumps the change
// timestamp used to invalidate the near-neighbor cache.
func (b *BeliefNode) AddParticle(p Particle) {
	b.particles.add(p)
	b.tLastChange++
}

// RemoveParticle removes p from this node's particle set and bumps the
// change timestamp.
func (b *BeliefNode) RemoveParticle(p Particle) {
	b.particles.remove(p)
	b.tLastChange++
}

// SampleAParticle draws uniformly from the particle set using the
// engine's RNG. Returns false if the node has no particles.
func (b *BeliefNode) SampleAParticle(r *rng.Source) (Particle, bool) {
	if b.particles.size() == 0 {
		return nil, false
	}
	return b.particles.at(r.Intn(b.particles.size())), true
}

// GetChild returns the existing child reached by (action, observation),
// if any, without creating it.
func (b *BeliefNode) GetChild(a model.Action, o model.Observation) (*BeliefNode, bool) {
	node, ok := b.mapping.GetActionNode(a)
	if !ok {
		return nil, false
	}
	return node.Obs.GetChild(o)
}

// CreateOrGetChild installs (and returns true for "created") or
// retrieves the belief-node child reached by (action, observation).
// Per the belief-tree invariant, each non-root BeliefNode is reachable
// by exactly one such triple.
func (b *BeliefNode) CreateOrGetChild(a model.Action, o model.Observation, seed HistoricalData) (*BeliefNode, bool) {
	node := b.mapping.CreateActionNode(a)
	return node.Obs.CreateOrGetChild(o, seed)
}

// RecalculateQValue asks the action mapping to recompute its best
// entry/value cache. Called whenever a child's Q-value may have
// changed (spec.md §4.3 "update()... called when child Q-values change").
func (b *BeliefNode) RecalculateQValue() {
	b.mapping.Update()
}

// GetBestAction returns the action with the highest mean Q among
// visited legal entries, or false if the mapping has no visited
// entries (a forced terminal, spec.md §4.3 edge cases).
func (b *BeliefNode) GetBestAction() (model.Action, bool) {
	entry, ok := b.mapping.BestEntry()
	if !ok {
		return nil, false
	}
	return entry.Action, true
}

// GetQValue returns the best mean Q at this node, or math.Inf(-1) if
// unvisited.
func (b *BeliefNode) GetQValue() float64 {
	entry, ok := b.mapping.BestEntry()
	if !ok {
		return negInf
	}
	return entry.MeanQ()
}

// DistL1Independent computes the mean pairwise L1 (problem-supplied
// DistanceTo) distance between this node's particles and other's,
// Θ(n·m). Per spec.md §4.5, callers must cap n·m; this implementation
// enforces the cap itself and logs+returns +Inf (never a near match)
// if it would be exceeded, per the §7 "pairwise-comparison explosion"
// recoverable-error classification. A node with no particles also
// yields +Inf.
func (b *BeliefNode) DistL1Independent(other *BeliefNode) float64 {
	n, m := b.particles.size(), other.particles.size()
	if n == 0 || m == 0 {
		return posInf
	}
	if n*m > maxPairwiseComparisons {
		if b.log != nil {
			b.log.Warn("distL1Independent: pairwise comparison explosion, skipping",
				"n", n, "m", m, "limit", maxPairwiseComparisons)
		}
		return posInf
	}
	var total float64
	for i := 0; i < n; i++ {
		si := b.particles.at(i).ParticleState()
		for j := 0; j < m; j++ {
			sj := other.particles.at(j).ParticleState()
			total += si.DistanceTo(sj)
		}
	}
	return total / float64(n*m)
}

// NearestNeighbor returns a cached near-neighbor belief node if it is
// still valid (no particle churn since it was computed), else nil.
func (b *BeliefNode) NearestNeighbor() (*BeliefNode, bool) {
	if b.nnCache == nil || b.tNNComp < b.tLastChange {
		return nil, false
	}
	return b.nnCache, true
}

// SetNearestNeighbor caches n as this node's near neighbor, valid as of
// the current change timestamp.
func (b *BeliefNode) SetNearestNeighbor(n *BeliefNode) {
	b.nnCache = n
	b.tNNComp = b.tLastChange
}

// MarkHead/MarkTail/UnmarkHead/UnmarkTail track how many history
// sequences currently begin or end at this node, used by the change
// engine to decide whether a node has become unreachable after repair.
func (b *BeliefNode) MarkHead()   { b.numberOfHeads++ }
func (b *BeliefNode) UnmarkHead() { b.numberOfHeads-- }
func (b *BeliefNode) MarkTail()   { b.numberOfTails++ }
func (b *BeliefNode) UnmarkTail() { b.numberOfTails-- }
func (b *BeliefNode) NumberOfHeads() int64 { return b.numberOfHeads }
func (b *BeliefNode) NumberOfTails() int64 { return b.numberOfTails }

func newBeliefNode(pools *Pools, seed HistoricalData, log *telemetry.Logger) *BeliefNode {
	bn := &BeliefNode{
		id:        pools.NextID(),
		particles: newParticleSet(),
		log:       log,
	}
	bn.mapping = pools.Actions.CreateActionMapping(pools, seed)
	if pools.Register != nil {
		pools.Register(bn)
	}
	return bn
}
