package tree

import (
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/telemetry"
)

// Tree is the belief tree root holder, C5. Child lookup/creation is
// implemented directly on BeliefNode (spec.md §4.5: "Operations mirror
// those on BeliefNode"); Tree itself only owns the root and the shared
// construction resources (id counter, RNG, mapping factories).
type Tree struct {
	root   *BeliefNode
	nextID int64
	pools  *Pools
	log    *telemetry.Logger
	nodes  []*BeliefNode
}

// New constructs an empty belief tree with a freshly-created root.
func New(actions ActionPool, observations ObservationPool, r *rng.Source, log *telemetry.Logger) *Tree {
	t := &Tree{log: log}
	t.pools = &Pools{
		Actions:      actions,
		Observations: observations,
		RNG:          r,
		NextID:       t.allocID,
		Register:     t.register,
	}
	t.root = newBeliefNode(t.pools, nil, log)
	return t
}

func (t *Tree) register(n *BeliefNode) {
	t.nodes = append(t.nodes, n)
}

// SampleCandidateNodes draws up to k distinct belief nodes other than
// exclude, in random order, for a POL rollout's near-neighbor search
// (spec.md §4.6). Sampling rather than a full scan keeps the search
// bounded by maxDistTry regardless of tree size.
func (t *Tree) SampleCandidateNodes(exclude *BeliefNode, k int, r *rng.Source) []*BeliefNode {
	if len(t.nodes) <= 1 {
		return nil
	}
	perm := r.Perm(len(t.nodes))
	out := make([]*BeliefNode, 0, k)
	for _, idx := range perm {
		if len(out) >= k {
			break
		}
		n := t.nodes[idx]
		if n == exclude {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (t *Tree) allocID() int64 {
	id := t.nextID
	t.nextID++
	return id
}

// Root returns the tree's root belief node.
func (t *Tree) Root() *BeliefNode { return t.root }

// Pools exposes the shared mapping factories/RNG/id-generator, for
// components (the search driver, change engine) that need to construct
// belief nodes directly, e.g. when reattaching a repaired sequence.
func (t *Tree) Pools() *Pools { return t.pools }
