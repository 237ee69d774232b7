// Package backup implements C7: propagating a completed
// HistorySequence's discounted returns up into the belief tree's
// Q-values, and its exact inverse.
//
// Grounded on the teacher's estimator loop in reinforcement/learning.go
// (alphaMonteCarloVanillaTrain's "Propagate rewards backward from
// terminal state per episode" loop over Rev(len(ep))), generalized from
// a flat state-value table to the tree's per-(belief,action) entries.
package backup

import (
	"fmt"

	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

// computeG returns Gᵢ for every index of entries, seeded at the tail by
// the last entry's bootstrap value if set (spec.md §4.7 step 1).
func computeG(entries []*history.HistoryEntry, gamma float64) []float64 {
	n := len(entries)
	g := make([]float64, n+1)
	if n > 0 {
		if bootstrap, ok := entries[n-1].Bootstrap(); ok {
			g[n] = bootstrap
		}
	}
	for i := n - 1; i >= 0; i-- {
		g[i] = entries[i].Reward() + gamma*g[i+1]
	}
	return g
}

// Backup implements spec.md §4.7: compute the discounted return G at
// every index from the tail and apply a +1/+Gi update to each entry,
// creating whatever tree structure a first-time visit requires.
func Backup(seq *history.HistorySequence, gamma float64, log *telemetry.Logger) error {
	return apply(seq, seq.Entries(), 0, gamma, +1, log, "backup")
}

// Unbackup (removePathFromBeliefNode in spec.md §4.7) is the exact
// inverse of Backup: replay with (-1, -Gi) deltas. Tree structure
// created by a prior Backup is not torn down -- per spec.md §3,
// BeliefNodes are never destroyed mid-run -- only the visit/Q
// bookkeeping is rolled back, which is all the backup/unbackup
// round-trip property (spec.md §8 property 3) requires.
func Unbackup(seq *history.HistorySequence, gamma float64, log *telemetry.Logger) error {
	return apply(seq, seq.Entries(), 0, gamma, -1, log, "unbackup")
}

// UnbackupSuffix is Unbackup restricted to entries[fromIdx:], used by
// the change engine to subtract an invalid suffix's old contribution
// before truncating and re-simulating it (spec.md §4.8 step 5, "call
// the inverse backup to subtract the old contributions of [s...L-1]").
// Gᵢ is still computed over the full entry slice so the bootstrap seed
// and downstream rewards are accounted for correctly; only the range of
// indices actually updated is restricted.
func UnbackupSuffix(seq *history.HistorySequence, fromIdx int, gamma float64, log *telemetry.Logger) error {
	return apply(seq, seq.Entries(), fromIdx, gamma, -1, log, "unbackup")
}

func apply(seq *history.HistorySequence, entries []*history.HistoryEntry, fromIdx int, gamma float64, sign int64, log *telemetry.Logger, op string) error {
	n := len(entries)
	if n == 0 || fromIdx >= n {
		return nil
	}
	g := computeG(entries, gamma)

	touched := make(map[tree.Mapping]struct{})
	for i := n - 1; i >= fromIdx; i-- {
		e := entries[i]
		if e.Action() == nil {
			// The trailing terminal/cutoff entry (spec.md §4.6 step 6)
			// carries no action and so has nothing to attribute a visit
			// to; it only contributes its reward to the G recurrence
			// above.
			continue
		}
		mapping := e.Belief().Mapping()
		entry, ok := mapping.GetEntry(e.Action())
		if !ok {
			return fmt.Errorf("%s: belief %d has no mapping entry for action %s", op, e.Belief().ID(), e.Action())
		}
		firstVisit := sign > 0 && entry.Visits == 0

		if _, err := mapping.UpdateValue(entry, sign, float64(sign)*g[i]); err != nil {
			if log != nil {
				log.Warn(op+": refused non-finite delta", "seq", seq.ID(), "index", i, "err", err)
			}
			continue
		}
		touched[mapping] = struct{}{}

		if firstVisit {
			node := mapping.CreateActionNode(e.Action())
			child, _ := node.Obs.CreateOrGetChild(e.Observation(), nil)
			retarget(entries, i, child)
		}
	}

	for m := range touched {
		m.Update()
	}
	return nil
}

// DeltaUpdate implements spec.md §4.8 step 6: for a reward-only change,
// recompute Gᵢ using entries' rewards before and after the caller
// refreshes them, and apply the resulting per-entry delta with no
// change to visit counts (no structural effect, since the suffix is
// still valid). Callers compute oldG with ComputeG before refreshing
// the rewards and newG with ComputeG afterward, and pass both.
func DeltaUpdate(seq *history.HistorySequence, fromIdx int, oldG, newG []float64, log *telemetry.Logger) error {
	entries := seq.Entries()
	n := len(entries)
	if n == 0 || fromIdx >= n {
		return nil
	}

	touched := make(map[tree.Mapping]struct{})
	for i := fromIdx; i < n; i++ {
		e := entries[i]
		if e.Action() == nil {
			continue
		}
		mapping := e.Belief().Mapping()
		entry, ok := mapping.GetEntry(e.Action())
		if !ok {
			return fmt.Errorf("deltaupdate: belief %d has no mapping entry for action %s", e.Belief().ID(), e.Action())
		}
		delta := newG[i] - oldG[i]
		if delta == 0 {
			continue
		}
		if _, err := mapping.UpdateValue(entry, 0, delta); err != nil {
			if log != nil {
				log.Warn("deltaupdate: refused non-finite delta", "seq", seq.ID(), "index", i, "err", err)
			}
			continue
		}
		touched[mapping] = struct{}{}
	}

	for m := range touched {
		m.Update()
	}
	return nil
}

// ComputeG exposes the Gᵢ recurrence for callers (the change engine)
// that need before/after snapshots around a reward refresh.
func ComputeG(seq *history.HistorySequence, gamma float64) []float64 {
	return computeG(seq.Entries(), gamma)
}

// BackupSuffix is Backup restricted to entries[fromIdx:], used by the
// change engine to back up a freshly re-simulated suffix without
// re-touching the untouched prefix that was never unbacked-up (spec.md
// §4.8 step 5, "back up the new suffix").
func BackupSuffix(seq *history.HistorySequence, fromIdx int, gamma float64, log *telemetry.Logger) error {
	return apply(seq, seq.Entries(), fromIdx, gamma, +1, log, "backup")
}

// retarget walks forward from fromIdx+1, ensuring each subsequent
// entry's tree edge exists and its belief pointer lands on the
// resulting descendant, consistent with the sequence's (action,
// observation) stream. In the steady-state MCTS case fromIdx is always
// the sequence's last index, so this loop runs zero times; it only does
// real work for a change-repair re-simulated suffix where several
// consecutive entries can all be first visits within one backup call.
func retarget(entries []*history.HistoryEntry, fromIdx int, node *tree.BeliefNode) {
	current := node
	for j := fromIdx + 1; j < len(entries); j++ {
		e := entries[j]
		if old := e.Belief(); old != current {
			old.RemoveParticle(e)
			e.SetBelief(current)
			current.AddParticle(e)
		}
		if j == len(entries)-1 {
			break
		}
		next, _ := current.CreateOrGetChild(e.Action(), e.Observation(), nil)
		current = next
	}
}
