package tree

import (
	"github.com/niceyeti/abtsolver/model"
)

// ContinuousActionPool is the ActionPool for continuous action spaces:
// rather than a fixed bin array, each belief node accumulates a dynamic
// collection of sampled action points, per spec.md §3's "Continuous:
// dynamic collection of sampled action points."
type ContinuousActionPool struct {
	// Sample draws one new, previously-untried action point. Called
	// whenever GetNextActionToTry is asked for a new action and no
	// as-yet-unexpanded sample remains to offer.
	Sample func(pools *Pools, seed HistoricalData) model.Action
	// MaxNewSamplesPerNode caps how many fresh samples a node will draw
	// across its lifetime before GetNextActionToTry reports "none left
	// to try," so continuous search eventually transitions to pure
	// UCB exploitation over what's been sampled so far.
	MaxNewSamplesPerNode int
}

// CreateActionMapping implements ActionPool.
func (p *ContinuousActionPool) CreateActionMapping(pools *Pools, seed HistoricalData) Mapping {
	return &ContinuousMapping{
		pool:    p,
		pools:   pools,
		seed:    seed,
		byHash:  make(map[uint64][]*Entry),
		bestIdx: -1,
	}
}

// ContinuousMapping holds a growing slice of sampled-action entries.
type ContinuousMapping struct {
	pool  *ContinuousActionPool
	pools *Pools
	seed  HistoricalData

	entries []*Entry
	byHash  map[uint64][]*Entry

	samplesDrawn    int
	totalVisitCount int64
	numVisited      int
	nChildren       int

	bestIdx   int
	bestMeanQ float64
}

func (m *ContinuousMapping) find(a model.Action) (*Entry, bool) {
	for _, e := range m.byHash[a.Hash()] {
		if e.Action.Equals(a) {
			return e, true
		}
	}
	return nil, false
}

func (m *ContinuousMapping) GetEntry(a model.Action) (*Entry, bool) {
	return m.find(a)
}

func (m *ContinuousMapping) GetActionNode(a model.Action) (*ActionNode, bool) {
	e, ok := m.find(a)
	if !ok || e.Child == nil {
		return nil, false
	}
	return e.Child, true
}

func (m *ContinuousMapping) CreateActionNode(a model.Action) *ActionNode {
	e, ok := m.find(a)
	if !ok {
		e = &Entry{mapping: m, Bin: -1, Action: a, Legal: true}
		m.entries = append(m.entries, e)
		m.byHash[a.Hash()] = append(m.byHash[a.Hash()], e)
	}
	if e.Child != nil {
		return e.Child
	}
	node := &ActionNode{ParentEntry: e, Obs: m.pools.Observations.CreateObservationMapping(m.pools)}
	e.Child = node
	m.nChildren++
	return node
}

func (m *ContinuousMapping) GetNextActionToTry() (model.Action, bool) {
	// Offer any already-sampled-but-never-visited entry first.
	for _, e := range m.entries {
		if e.Legal && e.Visits == 0 {
			return e.Action, true
		}
	}
	if m.pool.MaxNewSamplesPerNode > 0 && m.samplesDrawn >= m.pool.MaxNewSamplesPerNode {
		return nil, false
	}
	a := m.pool.Sample(m.pools, m.seed)
	m.samplesDrawn++
	e := &Entry{mapping: m, Bin: -1, Action: a, Legal: true}
	m.entries = append(m.entries, e)
	m.byHash[a.Hash()] = append(m.byHash[a.Hash()], e)
	return a, true
}

func (m *ContinuousMapping) Update() {
	m.bestIdx = -1
	m.bestMeanQ = negInf
	for i, e := range m.entries {
		if !e.Legal || e.Visits == 0 {
			continue
		}
		if q := e.MeanQ(); q > m.bestMeanQ {
			m.bestMeanQ = q
			m.bestIdx = i
		}
	}
}

func (m *ContinuousMapping) UpdateValue(e *Entry, dVisits int64, dTotalQ float64) (bool, error) {
	if !isFinite(dTotalQ) {
		return false, ErrNonFiniteDelta
	}
	before := e.Visits
	oldMean := e.MeanQ()

	e.Visits += dVisits
	e.TotalQ += dTotalQ
	m.totalVisitCount += dVisits

	if before == 0 && e.Visits > 0 {
		m.numVisited++
	} else if before > 0 && e.Visits == 0 {
		m.numVisited--
	}

	newMean := e.MeanQ()
	if e.Visits > 0 && newMean > m.bestMeanQ {
		m.bestMeanQ = newMean
		for i, entry := range m.entries {
			if entry == e {
				m.bestIdx = i
				break
			}
		}
	}
	return newMean != oldMean, nil
}

func (m *ContinuousMapping) SetLegal(e *Entry, legal bool) {
	e.Legal = legal
}

func (m *ContinuousMapping) BestEntry() (*Entry, bool) {
	if m.bestIdx < 0 || m.bestIdx >= len(m.entries) {
		return nil, false
	}
	return m.entries[m.bestIdx], true
}

func (m *ContinuousMapping) TotalVisitCount() int64      { return m.totalVisitCount }
func (m *ContinuousMapping) NumberOfVisitedEntries() int { return m.numVisited }
func (m *ContinuousMapping) Entries() []*Entry {
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
