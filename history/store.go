package history

import (
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/tree"
)

// Store owns every HistorySequence (and transitively every
// HistoryEntry) the engine creates, C2.
type Store struct {
	sequences map[int64]*HistorySequence
	nextSeq   int64
	nextIdx   map[int64]int
}

// New constructs an empty history store.
func New() *Store {
	return &Store{
		sequences: make(map[int64]*HistorySequence),
		nextIdx:   make(map[int64]int),
	}
}

// NewSequence creates and owns a new, empty HistorySequence.
func (s *Store) NewSequence() *HistorySequence {
	seq := &HistorySequence{id: s.nextSeq}
	s.sequences[seq.id] = seq
	s.nextSeq++
	return seq
}

// Get returns the sequence with the given id, if owned by this store.
func (s *Store) Get(id int64) (*HistorySequence, bool) {
	seq, ok := s.sequences[id]
	return seq, ok
}

// All returns every sequence currently owned by this store.
func (s *Store) All() []*HistorySequence {
	out := make([]*HistorySequence, 0, len(s.sequences))
	for _, seq := range s.sequences {
		out = append(out, seq)
	}
	return out
}

// AppendEntry builds and appends a new HistoryEntry to seq, registering
// the entry as a back-reference on info and as a particle of belief.
// This is the combined effect of spec.md §4.6 step 4 ("Allocate a
// HistoryEntry... append to the current sequence. Append this entry as
// a particle of current").
func (s *Store) AppendEntry(
	seq *HistorySequence,
	info *statepool.StateInfo,
	action model.Action,
	obs model.Observation,
	reward float64,
	discount float64,
	belief *tree.BeliefNode,
) *HistoryEntry {
	idx := len(seq.entries)
	e := &HistoryEntry{
		seqID:    seq.id,
		index:    idx,
		state:    info,
		action:   action,
		obs:      obs,
		reward:   reward,
		discount: discount,
		belief:   belief,
	}
	seq.entries = append(seq.entries, e)
	info.AddBackRef(e.Ref())
	belief.AddParticle(e)

	if idx == 0 {
		belief.MarkHead()
		seq.head = belief
	} else if seq.tail != nil {
		seq.tail.UnmarkTail()
	}
	belief.MarkTail()
	seq.tail = belief

	return e
}

// DeleteSuffix removes entries [k, len) from seq, un-registering each
// removed entry's state back-reference and removing it as a particle
// from its belief node. Used by change repair to truncate an invalid
// suffix (spec.md §4.8 step 5) before re-simulating from index k.
func (s *Store) DeleteSuffix(seq *HistorySequence, k int) {
	if k < 0 || k > len(seq.entries) {
		return
	}
	for i := k; i < len(seq.entries); i++ {
		e := seq.entries[i]
		e.state.RemoveBackRef(e.Ref())
		e.belief.RemoveParticle(e)
	}
	if k == 0 && seq.head != nil {
		seq.head.UnmarkHead()
		seq.head = nil
	}
	if seq.tail != nil {
		seq.tail.UnmarkTail()
		seq.tail = nil
	}
	seq.entries = seq.entries[:k]
	if k > 0 {
		seq.tail = seq.entries[k-1].belief
		seq.tail.MarkTail()
	}
}

// SequencesIntersecting returns every sequence with at least one entry
// referencing a state in infos (spec.md §4.8 step 3: "walking the
// back-references on flagged StateInfos").
func (s *Store) SequencesIntersecting(infos []*statepool.StateInfo) []*HistorySequence {
	seen := make(map[int64]struct{})
	var out []*HistorySequence
	for _, info := range infos {
		for _, ref := range info.BackRefs() {
			if _, ok := seen[ref.SequenceID]; ok {
				continue
			}
			seen[ref.SequenceID] = struct{}{}
			if seq, ok := s.sequences[ref.SequenceID]; ok {
				out = append(out, seq)
			}
		}
	}
	return out
}

// Detach removes seq from the store entirely (every entry's back
// references and particle memberships are also cleared), used when
// change repair cannot reattach a sequence to the tree (spec.md §4.8,
// "Failure" paragraph).
func (s *Store) Detach(seq *HistorySequence) {
	s.DeleteSuffix(seq, 0)
	delete(s.sequences, seq.id)
}
