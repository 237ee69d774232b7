package tree

import (
	"github.com/niceyeti/abtsolver/model"
)

// DiscretizedActionPool is the ActionPool for enumerated/discretized
// action spaces: every belief node gets the same fixed-size bin array,
// pre-shuffled once per node so that GetNextActionToTry's order is
// "randomly shuffled bin sequence" (spec.md §4.3), matching
// original_source/src/solver/mappings/actions/discretized_actions.cpp's
// DiscretizedActionMap constructor, which shuffles a binSequence up
// front and pops its front on each call.
type DiscretizedActionPool struct {
	// NumBins is the fixed number of discretized action bins.
	NumBins int
	// BinToAction resolves a bin number to its concrete Action, e.g. by
	// constructing a problem-specific discretized action value.
	BinToAction func(bin int) model.Action
	// LegalBins optionally restricts which bins start out legal at a
	// fresh node (nil means all bins are legal initially).
	LegalBins func(seed HistoricalData) []int
}

// CreateActionMapping implements ActionPool.
func (p *DiscretizedActionPool) CreateActionMapping(pools *Pools, seed HistoricalData) Mapping {
	legal := make([]bool, p.NumBins)
	if p.LegalBins != nil {
		for _, b := range p.LegalBins(seed) {
			legal[b] = true
		}
	} else {
		for i := range legal {
			legal[i] = true
		}
	}

	m := &DiscretizedMapping{
		pool:    p,
		pools:   pools,
		entries: make([]*Entry, p.NumBins),
		untried: make(map[int]struct{}),
		bestBin: -1,
	}
	for i := 0; i < p.NumBins; i++ {
		e := &Entry{mapping: m, Bin: i, Action: p.BinToAction(i), Legal: legal[i]}
		m.entries[i] = e
		if legal[i] {
			m.untried[i] = struct{}{}
		}
	}
	// Pre-shuffle the order in which untried bins are offered, matching
	// the teacher/original's "randomly shuffled bin sequence." The
	// pre-shuffle input must be built by iterating bins in a fixed order
	// rather than ranging over the untried map, whose iteration order
	// Go randomizes independently of pools.RNG -- doing otherwise would
	// feed Shuffle a different array each run and break determinism
	// under a fixed seed (spec.md §8 invariant #7).
	order := make([]int, 0, len(m.untried))
	for b := 0; b < p.NumBins; b++ {
		if _, ok := m.untried[b]; ok {
			order = append(order, b)
		}
	}
	pools.RNG.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	m.untriedOrder = order
	return m
}

// DiscretizedMapping is a fixed-size array of Entry, one per action
// bin, plus the untried-bin queue and best-entry cache.
type DiscretizedMapping struct {
	pool  *DiscretizedActionPool
	pools *Pools

	entries []*Entry
	// untriedOrder is the shuffled bin sequence; untried tracks set
	// membership for O(1) insert/remove.
	untriedOrder []int
	untried      map[int]struct{}

	numberOfVisitedEntries int
	totalVisitCount        int64
	nChildren              int

	bestBin   int
	bestMeanQ float64
}

func (m *DiscretizedMapping) GetEntry(a model.Action) (*Entry, bool) {
	bin, ok := a.BinNumber()
	if !ok || bin < 0 || bin >= len(m.entries) {
		return nil, false
	}
	return m.entries[bin], true
}

func (m *DiscretizedMapping) GetActionNode(a model.Action) (*ActionNode, bool) {
	e, ok := m.GetEntry(a)
	if !ok || e.Child == nil {
		return nil, false
	}
	return e.Child, true
}

func (m *DiscretizedMapping) CreateActionNode(a model.Action) *ActionNode {
	e, ok := m.GetEntry(a)
	if !ok {
		return nil
	}
	if e.Child != nil {
		return e.Child
	}
	node := &ActionNode{ParentEntry: e, Obs: m.pools.Observations.CreateObservationMapping(m.pools)}
	e.Child = node
	m.nChildren++
	return node
}

func (m *DiscretizedMapping) GetNextActionToTry() (model.Action, bool) {
	for len(m.untriedOrder) > 0 {
		bin := m.untriedOrder[0]
		m.untriedOrder = m.untriedOrder[1:]
		if _, stillUntried := m.untried[bin]; stillUntried {
			delete(m.untried, bin)
			return m.entries[bin].Action, true
		}
		// Entry was removed from the untried set out of band (e.g. by
		// SetLegal or an UpdateValue visit crossing 0) -- skip it.
	}
	return nil, false
}

func (m *DiscretizedMapping) Update() {
	m.bestBin = -1
	m.bestMeanQ = negInf
	for _, e := range m.entries {
		if !e.Legal || e.Visits == 0 {
			continue
		}
		if q := e.MeanQ(); q > m.bestMeanQ {
			m.bestMeanQ = q
			m.bestBin = e.Bin
		}
	}
}

func (m *DiscretizedMapping) UpdateValue(e *Entry, dVisits int64, dTotalQ float64) (bool, error) {
	if !isFinite(dTotalQ) {
		return false, ErrNonFiniteDelta
	}
	before := e.Visits
	oldMean := e.MeanQ()

	e.Visits += dVisits
	e.TotalQ += dTotalQ
	m.totalVisitCount += dVisits

	if before == 0 && e.Visits > 0 {
		m.numberOfVisitedEntries++
		delete(m.untried, e.Bin)
	} else if before > 0 && e.Visits == 0 {
		m.numberOfVisitedEntries--
		if e.Legal {
			m.untried[e.Bin] = struct{}{}
			m.untriedOrder = append(m.untriedOrder, e.Bin)
		}
	}

	newMean := e.MeanQ()
	if e.Visits > 0 && (m.bestBin == -1 || newMean > m.bestMeanQ) {
		m.bestMeanQ = newMean
		m.bestBin = e.Bin
	}
	return newMean != oldMean, nil
}

func (m *DiscretizedMapping) SetLegal(e *Entry, legal bool) {
	if e.Legal == legal {
		return
	}
	e.Legal = legal
	if !legal {
		delete(m.untried, e.Bin)
		return
	}
	if e.Visits == 0 {
		m.untried[e.Bin] = struct{}{}
		m.untriedOrder = append(m.untriedOrder, e.Bin)
	}
}

func (m *DiscretizedMapping) BestEntry() (*Entry, bool) {
	if m.bestBin < 0 {
		return nil, false
	}
	return m.entries[m.bestBin], true
}

func (m *DiscretizedMapping) TotalVisitCount() int64       { return m.totalVisitCount }
func (m *DiscretizedMapping) NumberOfVisitedEntries() int  { return m.numberOfVisitedEntries }
func (m *DiscretizedMapping) NumChildren() int             { return m.nChildren }
func (m *DiscretizedMapping) Entries() []*Entry {
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
