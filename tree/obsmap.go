package tree

import (
	"github.com/niceyeti/abtsolver/model"
)

// ObsMapping is C4: per action node, maps observations to belief-node
// children. Two shapes satisfy it: DiscreteObsMapping (hash map) and
// ApproxObsMapping (nearest-neighbor with an acceptance threshold).
type ObsMapping interface {
	GetChild(o model.Observation) (*BeliefNode, bool)
	// CreateOrGetChild installs a new child (constructing its action
	// mapping via the pools' ActionPool, seeded from the parent's
	// historical data) if absent, or returns the existing one.
	CreateOrGetChild(o model.Observation, seed HistoricalData) (node *BeliefNode, created bool)
	// Entries enumerates every (observation, child) pair currently
	// held, for persistence (spec.md §6.2) and testing.
	Entries() []ObsEntry
}

// ObsEntry is one (observation, child) pair of an ObsMapping.
type ObsEntry struct {
	Obs  model.Observation
	Node *BeliefNode
}

// DiscreteObservationPool builds DiscreteObsMapping instances -- the
// default, hash-map-backed ObservationPool for problems with an
// enumerable or small discrete observation space.
type DiscreteObservationPool struct{}

func (DiscreteObservationPool) CreateObservationMapping(pools *Pools) ObsMapping {
	return &DiscreteObsMapping{pools: pools, byHash: make(map[uint64][]obsChild)}
}

type obsChild struct {
	obs  model.Observation
	node *BeliefNode
}

// DiscreteObsMapping is a hash map from observation identity to an
// owned belief-node child.
type DiscreteObsMapping struct {
	pools  *Pools
	byHash map[uint64][]obsChild
}

// A nil observation (an illegal step reports none) is a key of its own,
// hashed as 0 and equal only to another nil.
func (m *DiscreteObsMapping) GetChild(o model.Observation) (*BeliefNode, bool) {
	var h uint64
	if o != nil {
		h = o.Hash()
	}
	for _, c := range m.byHash[h] {
		if (c.obs == nil && o == nil) || (c.obs != nil && o != nil && c.obs.Equals(o)) {
			return c.node, true
		}
	}
	return nil, false
}

func (m *DiscreteObsMapping) CreateOrGetChild(o model.Observation, seed HistoricalData) (*BeliefNode, bool) {
	if node, ok := m.GetChild(o); ok {
		return node, false
	}
	var h uint64
	if o != nil {
		h = o.Hash()
	}
	node := newBeliefNode(m.pools, seed, nil)
	m.byHash[h] = append(m.byHash[h], obsChild{obs: o, node: node})
	return node, true
}

func (m *DiscreteObsMapping) Entries() []ObsEntry {
	out := make([]ObsEntry, 0, len(m.byHash))
	for _, bucket := range m.byHash {
		for _, c := range bucket {
			out = append(out, ObsEntry{Obs: c.obs, Node: c.node})
		}
	}
	return out
}

// ApproxObservationPool builds ApproxObsMapping instances for
// continuous observation spaces: two observations within Threshold
// (via Distance) are treated as the same child, per spec.md §4.4.
type ApproxObservationPool struct {
	// Distance measures dissimilarity between two observations.
	Distance func(a, b model.Observation) float64
	// Threshold is the acceptance distance below which two observations
	// map to the same child.
	Threshold float64
}

func (p *ApproxObservationPool) CreateObservationMapping(pools *Pools) ObsMapping {
	return &ApproxObsMapping{pool: p, pools: pools}
}

// ApproxObsMapping holds every distinct observation seen so far (each
// as the representative of its acceptance neighborhood) alongside its
// child belief node, and does a linear nearest-neighbor scan on lookup.
// This mirrors the original solver's approximate ObservationMapping,
// which uses a problem-supplied distance and acceptance threshold
// rather than exact equality.
type ApproxObsMapping struct {
	pool    *ApproxObservationPool
	pools   *Pools
	entries []obsChild
}

func (m *ApproxObsMapping) nearest(o model.Observation) (int, float64) {
	best := -1
	bestDist := posInf
	for i, c := range m.entries {
		d := m.pool.Distance(o, c.obs)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, bestDist
}

func (m *ApproxObsMapping) GetChild(o model.Observation) (*BeliefNode, bool) {
	i, d := m.nearest(o)
	if i < 0 || d > m.pool.Threshold {
		return nil, false
	}
	return m.entries[i].node, true
}

func (m *ApproxObsMapping) CreateOrGetChild(o model.Observation, seed HistoricalData) (*BeliefNode, bool) {
	i, d := m.nearest(o)
	if i >= 0 && d <= m.pool.Threshold {
		return m.entries[i].node, false
	}
	node := newBeliefNode(m.pools, seed, nil)
	m.entries = append(m.entries, obsChild{obs: o, node: node})
	return node, true
}

func (m *ApproxObsMapping) Entries() []ObsEntry {
	out := make([]ObsEntry, 0, len(m.entries))
	for _, c := range m.entries {
		out = append(out, ObsEntry{Obs: c.obs, Node: c.node})
	}
	return out
}
