// Package tree implements C3 (Action Mapping), C4 (Observation Mapping)
// and C5 (Belief Tree). These three components are mutually recursive
// -- a BeliefNode owns an ActionMapping, whose entries own ActionNodes,
// which own ObservationMappings, whose children are BeliefNodes again
// -- so, per DESIGN NOTES §9's discussion of the cyclic owner graph,
// they live in one package instead of three, the same way a compiler
// keeps a mutually-recursive AST in one package rather than fighting
// Go's acyclic import graph.
package tree

import (
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
)

// Particle is the minimal view a belief node needs of a history entry
// in order to own it as a particle: its sampled state (for
// distL1Independent) and its persisted identity (sequence id + index,
// matching the §6.2 text format). history.HistoryEntry satisfies this
// interface structurally; the tree package never imports history,
// avoiding the BeliefNode<->HistoryEntry cyclic import that a direct
// reference would create.
type Particle interface {
	ParticleState() model.State
	SequenceID() int64
	Index() int
}

// HistoricalData is opaque, problem-specific seed data a parent belief
// node hands to a child's freshly constructed ActionMapping, e.g. for
// heuristic initialization of Q-values. The engine never inspects it.
type HistoricalData interface{}

// Pools bundles the two problem-supplied mapping factories together
// with the shared resources (the engine's single RNG, and the belief
// node ID generator) that any mapping implementation needs in order to
// construct its children. Every BeliefNode, ActionMapping and
// ObsMapping implementation in this package closes over a *Pools
// instead of importing a global -- the Go expression of moving
// "mutable global statics" into an explicit, engine-scoped context
// object (DESIGN NOTES §9).
type Pools struct {
	Actions      ActionPool
	Observations ObservationPool
	RNG          *rng.Source
	NextID       func() int64
	// Register is invoked once for every belief node constructed
	// (including the root), letting the owning Tree keep a flat
	// registry for the POL rollout strategy's near-neighbor search
	// (spec.md §4.6, "via distL1Independent"), which needs to consider
	// candidate nodes from across the tree, not just one node's
	// children.
	Register func(*BeliefNode)
}

// ActionPool is the Model-supplied factory for per-node action
// mappings, named in spec.md §4.4 ("an action mapping constructed by
// the Model via an ActionPool factory").
type ActionPool interface {
	CreateActionMapping(pools *Pools, seed HistoricalData) Mapping
}

// ObservationPool is the Model-supplied factory for per-action-node
// observation mappings.
type ObservationPool interface {
	CreateObservationMapping(pools *Pools) ObsMapping
}
