// Package change implements C8: repairing the belief tree and its
// history sequences when the Model's parameters change mid-run.
//
// Grounded on the design comment in reinforcement/learning.go about
// pausing workers for a consistent sweep before resuming training --
// the same "stop, repair under a consistent view, resume" shape, here
// applied to History sequences instead of worker goroutines (the
// engine's scheduling model is already single-threaded, spec.md §5, so
// no actual pause is needed -- there's nothing else running to pause).
package change

import (
	"github.com/niceyeti/abtsolver/backup"
	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/search"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
)

// structural is the set of change kinds that invalidate a sequence's
// suffix outright, as opposed to REWARD which only requires a
// delta-update (spec.md §4.8 step 4).
const structural = model.ChangeTransition | model.ChangeAdded | model.ChangeDeleted | model.ChangeObstacle

// Engine owns change repair: applying a scheduled change to the Model,
// flagging affected states, and repairing every history sequence that
// touches one.
type Engine struct {
	Model   model.Model
	States  *statepool.Pool
	History *history.Store
	Driver  *search.Driver
	Gamma   float64
	Log     *telemetry.Logger
}

// New constructs a change Engine over the given collaborators.
func New(m model.Model, states *statepool.Pool, store *history.Store, driver *search.Driver, gamma float64, log *telemetry.Logger) *Engine {
	return &Engine{Model: m, States: states, History: store, Driver: driver, Gamma: gamma, Log: log}
}

// Apply runs one change cycle at simulated time t, per the change
// kinds scheduled for t (spec.md §4.8 steps 1-7). schedule is the
// map returned by Model.LoadChanges.
func (e *Engine) Apply(t int64, schedule map[int64][]model.ChangeKind) error {
	kinds := schedule[t]
	if len(kinds) == 0 {
		return nil
	}

	var records []model.ChangeRecord
	for _, kind := range kinds {
		recs, err := e.Model.ApplyChange(t, nil, kind)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		for _, s := range rec.Region {
			info := e.States.CreateOrGetInfo(s)
			e.States.SetChangeFlags(info, rec.Kind)
		}
	}

	flagged := e.States.AffectedStates()
	if len(flagged) == 0 {
		return nil
	}
	flagSet := make(map[int64]model.ChangeKind, len(flagged))
	for _, info := range flagged {
		flagSet[info.ID()] = info.Flags()
	}

	for _, seq := range e.History.SequencesIntersecting(flagged) {
		s, kindUnion, found := earliestAffected(seq, flagSet)
		if !found {
			continue
		}
		var err error
		if kindUnion.Has(structural) {
			err = e.repairInvalidSuffix(seq, s)
		} else {
			err = e.repairRewardOnly(seq, s)
		}
		if err != nil && e.Log != nil {
			e.Log.Warn("change: sequence repair failed", "seq", seq.ID(), "err", err)
		}
	}

	e.States.ResetAffectedStates()
	return nil
}

// earliestAffected returns the earliest index s with a flagged state
// and the union of change kinds seen across every flagged index in the
// sequence (spec.md §4.8 step 4, "find the earliest affected index s").
func earliestAffected(seq *history.HistorySequence, flagSet map[int64]model.ChangeKind) (s int, kindUnion model.ChangeKind, found bool) {
	s = -1
	entries := seq.Entries()
	for i, e := range entries {
		k, ok := flagSet[e.StateInfo().ID()]
		if !ok {
			continue
		}
		if s == -1 {
			s = i
		}
		kindUnion |= k
		found = true
	}
	return s, kindUnion, found
}

// repairInvalidSuffix implements spec.md §4.8 step 5: subtract the
// suffix's old contribution, truncate it, and resume simulation from
// the restored belief/state. If re-simulation fails (a genuine Model
// error -- an illegal action never errors, spec.md §7, so this is
// reserved for the "cannot reach the same tree point" failure mode),
// the sequence is fully detached and its prefix contribution is also
// subtracted (spec.md §4.8, "Failure" paragraph).
func (e *Engine) repairInvalidSuffix(seq *history.HistorySequence, s int) error {
	if err := backup.UnbackupSuffix(seq, s, e.Gamma, e.Log); err != nil {
		return err
	}

	anchor := seq.At(s)
	belief := anchor.Belief()
	info := anchor.StateInfo()
	e.History.DeleteSuffix(seq, s)

	if err := e.Driver.Resume(seq, belief, info, s, e.Gamma); err != nil {
		_ = backup.UnbackupSuffix(seq, 0, e.Gamma, e.Log)
		e.History.Detach(seq)
		if belief.NumParticles() == 0 && belief.NumberOfHeads() == 0 && belief.NumberOfTails() == 0 {
			if e.Log != nil {
				e.Log.Warn("change: belief node unreachable after failed repair", "node", belief.ID())
			}
		}
		if e.Log != nil {
			e.Log.Warn("change: re-simulation failed, sequence detached", "seq", seq.ID(), "err", err)
		}
		return nil
	}

	return backup.BackupSuffix(seq, s, e.Gamma, e.Log)
}

// repairRewardOnly implements spec.md §4.8 step 6: refresh rewards
// along the surviving suffix and apply the resulting per-entry Q delta
// with no change to visit counts or tree structure.
func (e *Engine) repairRewardOnly(seq *history.HistorySequence, s int) error {
	oldG := backup.ComputeG(seq, e.Gamma)

	entries := seq.Entries()
	for i := s; i < len(entries); i++ {
		entry := entries[i]
		if entry.Action() == nil {
			continue
		}
		entry.SetReward(e.Model.Reward(entry.StateInfo().State(), entry.Action()))
	}

	newG := backup.ComputeG(seq, e.Gamma)
	return backup.DeltaUpdate(seq, s, oldG, newG, e.Log)
}
