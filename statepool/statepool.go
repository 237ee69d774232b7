// Package statepool implements C1: the canonicalizing state index. It
// owns every State the engine ever sees, assigns each a dense integer
// ID, and tracks which states a model change has touched.
//
// Grounded on the teacher's grid_world.Convert, which builds a dense,
// indexable state grid up front; here the grid is unknown ahead of time
// (states arrive one at a time from Model.Step), so indexing happens
// incrementally via a canonicalizing map, same idea as
// tabular/atomic_float's single-writer-safe scalar but applied to
// identity rather than value.
package statepool

import (
	"fmt"

	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/telemetry"
)

// EntryRef is a non-owning, serializable handle to one HistoryEntry,
// identified the same way the persisted tree format identifies a
// particle: (sequence id, index within that sequence). StateInfo stores
// these instead of a pointer/interface to history.HistoryEntry so that
// statepool never needs to import the history package -- this is the
// "arena index instead of a pointer" resolution to the StateInfo <->
// HistoryEntry cyclic reference called out in spec.md DESIGN NOTES §9.
type EntryRef struct {
	SequenceID int64
	Index      int
}

// StateInfo wraps a canonicalized State with engine-assigned identity
// and change-tracking metadata.
type StateInfo struct {
	id      int64
	state   model.State
	flags   model.ChangeKind
	backRef map[EntryRef]struct{}
}

// ID returns the stable, dense integer ID assigned at first insertion.
func (si *StateInfo) ID() int64 { return si.id }

// State returns the wrapped problem state.
func (si *StateInfo) State() model.State { return si.state }

// Flags returns the current OR'd change-flag bitmask.
func (si *StateInfo) Flags() model.ChangeKind { return si.flags }

// BackRefs returns every (sequence, index) pair currently known to
// reference this state. The returned slice is a snapshot copy.
func (si *StateInfo) BackRefs() []EntryRef {
	out := make([]EntryRef, 0, len(si.backRef))
	for ref := range si.backRef {
		out = append(out, ref)
	}
	return out
}

// AddBackRef registers that history entry ref now points at this state.
// Called by the history store whenever an entry is created or
// retargeted to a different state (e.g. during change repair).
func (si *StateInfo) AddBackRef(ref EntryRef) {
	si.backRef[ref] = struct{}{}
}

// RemoveBackRef un-registers ref, e.g. when a sequence suffix is
// truncated during change repair.
func (si *StateInfo) RemoveBackRef(ref EntryRef) {
	delete(si.backRef, ref)
}

// Pool is the canonicalizing state index, C1.
type Pool struct {
	log        *telemetry.Logger
	byID       []*StateInfo
	byIdentity map[uint64][]*StateInfo
	affected   map[int64]*StateInfo
}

// New constructs an empty state pool.
func New(log *telemetry.Logger) *Pool {
	return &Pool{
		log:        log,
		byIdentity: make(map[uint64][]*StateInfo),
		affected:   make(map[int64]*StateInfo),
	}
}

// CreateOrGetInfo is the canonicalizing insert: createOrGetInfo in
// spec.md §4.1. If an equal state already exists, the incumbent
// StateInfo is returned; otherwise the given state is indexed under a
// freshly assigned, dense ID. Hash collisions are resolved by chaining
// a bucket per hash value and scanning it with Equals -- the Go
// analogue of the C++ pool's
// unordered_map<State*, StateInfo*, Hash, EqualityTest>.
func (p *Pool) CreateOrGetInfo(s model.State) *StateInfo {
	key := s.Hash()
	for _, info := range p.byIdentity[key] {
		if info.state.Equals(s) {
			return info
		}
	}
	info := &StateInfo{
		id:      int64(len(p.byID)),
		state:   s,
		backRef: make(map[EntryRef]struct{}),
	}
	p.byID = append(p.byID, info)
	p.byIdentity[key] = append(p.byIdentity[key], info)
	return info
}

// GetInfoByID looks up a StateInfo by its dense ID. An out-of-range ID
// is a programmer error -- IDs only ever come from this same pool -- so
// per spec.md §4.1 this reports and aborts rather than returning an error.
func (p *Pool) GetInfoByID(id int64) *StateInfo {
	if id < 0 || int(id) >= len(p.byID) {
		p.log.Fatal("statepool: out-of-range state id", "id", id, "size", len(p.byID))
		panic(fmt.Sprintf("unreachable: statepool id %d out of range", id))
	}
	return p.byID[id]
}

// Size returns the number of distinct canonicalized states.
func (p *Pool) Size() int { return len(p.byID) }

// SetChangeFlags ORs flags into info's flag bitmask and records info in
// the affected set for this change cycle.
func (p *Pool) SetChangeFlags(info *StateInfo, flags model.ChangeKind) {
	info.flags |= flags
	p.affected[info.id] = info
}

// AffectedStates returns the current affected set.
func (p *Pool) AffectedStates() []*StateInfo {
	out := make([]*StateInfo, 0, len(p.affected))
	for _, info := range p.affected {
		out = append(out, info)
	}
	return out
}

// ResetAffectedStates clears the flag bitmask on every affected
// StateInfo and empties the affected set. Must run exactly once per
// change cycle, after repair and before the next round of re-simulation
// begins (spec.md §4.1, §4.8 step 7).
func (p *Pool) ResetAffectedStates() {
	for _, info := range p.affected {
		info.flags = 0
	}
	p.affected = make(map[int64]*StateInfo)
}
