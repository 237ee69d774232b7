// Package history implements C2: ownership of every HistorySequence and
// (transitively) every HistoryEntry in the engine. Grounded on the
// teacher's Episode []Step -- a sequence is the engine's analogue of
// one of the teacher's episodes, and like the teacher's Step it stores
// state/action/reward plus a successor link (here, the belief node
// reached after the step rather than a raw state).
package history

import (
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/tree"
)

// HistoryEntry is one step of one trajectory (spec.md §3).
type HistoryEntry struct {
	seqID    int64
	index    int
	state    *statepool.StateInfo
	action   model.Action
	obs      model.Observation
	reward   float64
	discount float64
	belief   *tree.BeliefNode

	// bootstrap is the rollout value estimate attached to a frontier
	// entry at the end of singleSearch (spec.md §4.6, last paragraph).
	// It is only meaningful on the last entry of a sequence.
	bootstrap    float64
	hasBootstrap bool
}

// ParticleState, SequenceID, Index implement tree.Particle, letting a
// *HistoryEntry be owned directly as a belief node's particle without
// the tree package importing this one (see tree/pools.go).
func (e *HistoryEntry) ParticleState() model.State { return e.state.State() }
func (e *HistoryEntry) SequenceID() int64          { return e.seqID }
func (e *HistoryEntry) Index() int                 { return e.index }

// StateInfo returns the canonicalized state this entry was sampled in.
func (e *HistoryEntry) StateInfo() *statepool.StateInfo { return e.state }

// Action returns the action taken from this entry's state.
func (e *HistoryEntry) Action() model.Action { return e.action }

// Observation returns the observation received after acting.
func (e *HistoryEntry) Observation() model.Observation { return e.obs }

// Reward returns the immediate reward received at this step.
func (e *HistoryEntry) Reward() float64 { return e.reward }

// SetReward overwrites the immediate reward, used by the change engine
// when a REWARD-only change refreshes rewards along a surviving suffix
// (spec.md §4.8 step 6).
func (e *HistoryEntry) SetReward(r float64) { e.reward = r }

// Discount returns gamma^depth at this entry's depth.
func (e *HistoryEntry) Discount() float64 { return e.discount }

// Belief returns the belief node this entry belongs to after the step.
func (e *HistoryEntry) Belief() *tree.BeliefNode { return e.belief }

// SetBelief retargets this entry to a different belief node, used
// during change repair when a suffix is reattached to newly created
// descendants (spec.md §4.7 step 2).
func (e *HistoryEntry) SetBelief(b *tree.BeliefNode) { e.belief = b }

// Bootstrap returns the rollout value estimate attached to this entry
// (only meaningful on a sequence's last entry) and whether one was set.
func (e *HistoryEntry) Bootstrap() (float64, bool) { return e.bootstrap, e.hasBootstrap }

// SetBootstrap attaches a rollout value estimate to this entry.
func (e *HistoryEntry) SetBootstrap(v float64) {
	e.bootstrap = v
	e.hasBootstrap = true
}

// Ref returns this entry's persisted identity, the same (sequence-id,
// index) pair statepool.StateInfo stores as a weak back-reference.
func (e *HistoryEntry) Ref() statepool.EntryRef {
	return statepool.EntryRef{SequenceID: e.seqID, Index: e.index}
}

// HistorySequence is an ordered, non-empty list of HistoryEntry
// (spec.md §3): entries at indices 0..n-2 have a non-terminal state;
// entry n-1 is terminal or depth-truncated.
type HistorySequence struct {
	id      int64
	entries []*HistoryEntry

	// head/tail are the belief nodes currently marked as this
	// sequence's start and end (BeliefNode.MarkHead/MarkTail), kept in
	// sync by Store so the change engine can tell whether a node has
	// become unreachable after repair (spec.md §3).
	head, tail *tree.BeliefNode
}

// ID returns this sequence's identity.
func (s *HistorySequence) ID() int64 { return s.id }

// Len returns the number of entries.
func (s *HistorySequence) Len() int { return len(s.entries) }

// At returns the entry at index i.
func (s *HistorySequence) At(i int) *HistoryEntry { return s.entries[i] }

// Entries returns a snapshot of every entry in order.
func (s *HistorySequence) Entries() []*HistoryEntry {
	out := make([]*HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Last returns the final entry, or nil if empty.
func (s *HistorySequence) Last() *HistoryEntry {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}
