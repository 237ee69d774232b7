package tree

import (
	"fmt"
	"math"

	"github.com/niceyeti/abtsolver/model"
)

// Entry is one action bin's bookkeeping within a Mapping: C3's
// "entry carries the action..., visit count, total Q, mean Q..., a
// legality flag, and an owning pointer to an ActionNode child".
type Entry struct {
	mapping Mapping
	Action  model.Action
	Bin     int // meaningful only for discretized entries; -1 otherwise
	Visits  int64
	TotalQ  float64
	Legal   bool
	Child   *ActionNode
}

// MeanQ is totalQ/visits, or -Inf if never visited, per the Q-value
// invariant in spec.md §3.
func (e *Entry) MeanQ() float64 {
	if e.Visits == 0 {
		return negInf
	}
	return e.TotalQ / float64(e.Visits)
}

// ActionNode owns an ObservationMapping plus a back-pointer to its
// entry in the parent's ActionMapping (C3/C4's cross-link).
type ActionNode struct {
	ParentEntry *Entry
	Obs         ObsMapping
}

// Mapping is the per-belief-node action mapping, C3. Two concrete
// shapes satisfy it: DiscretizedMapping (fixed-size array of bins) and
// ContinuousMapping (dynamic collection of sampled action points),
// matching spec.md §3's "Polymorphic over two variants."
type Mapping interface {
	GetEntry(a model.Action) (*Entry, bool)
	GetActionNode(a model.Action) (*ActionNode, bool)
	// CreateActionNode installs a new ActionNode child for a if absent,
	// idempotent on repeat calls for the same action.
	CreateActionNode(a model.Action) *ActionNode
	// GetNextActionToTry returns an untried legal action in
	// construction-order, or ok=false once every legal bin has been
	// tried at least once.
	GetNextActionToTry() (a model.Action, ok bool)
	// Update recomputes the best entry/value cache; O(entries).
	Update()
	// UpdateValue applies a transactional (Δvisits, ΔtotalQ) update to
	// entry, returning whether meanQ changed. A non-finite delta is
	// refused (logged, no-op), per spec.md §4.3.
	UpdateValue(e *Entry, dVisits int64, dTotalQ float64) (changed bool, err error)
	// SetLegal flips an entry's legality, maintaining the untried-set
	// discipline (spec.md §4.3, §8 property 4).
	SetLegal(e *Entry, legal bool)
	// BestEntry returns the highest-meanQ visited legal entry, or
	// ok=false if there are none (forced terminal, §4.3 edge case).
	BestEntry() (*Entry, bool)
	TotalVisitCount() int64
	NumberOfVisitedEntries() int
	Entries() []*Entry
}

// ErrNonFiniteDelta is returned (and logged by the caller) when
// UpdateValue is asked to apply a non-finite ΔtotalQ, per spec.md §4.3
// "On non-finite Δ, log and refuse the update."
var ErrNonFiniteDelta = fmt.Errorf("actionmap: refusing non-finite Q delta")

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
