package change

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/backup"
	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/internal/fakemodel"
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/search"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

func newFixture() (*Engine, *search.Driver, *fakemodel.Grid) {
	r := rng.New(5)
	log := telemetry.NewNop()
	grid := fakemodel.New(4, 4, r)
	states := statepool.New(log)
	store := history.New()
	tr := tree.New(grid.ActionPool(), grid.ObservationPool(), r, log)
	cfg := search.Config{ExploreCoef: 1.0, DepthThreshold: 0.01, MaxDistTry: 10, DistThreshold: 1.0}
	driver := search.New(grid, states, store, tr, r, cfg, log)
	eng := New(grid, states, store, driver, grid.Discount(), log)
	return eng, driver, grid
}

func TestApplyObstacleChange(t *testing.T) {
	Convey("Given a tree that has run several trials through a cell", t, func() {
		eng, driver, grid := newFixture()
		info := driver.States.CreateOrGetInfo(grid.Start)

		var seqs []*history.HistorySequence
		for i := 0; i < 10; i++ {
			seq, err := driver.SingleSearch(driver.Tree.Root(), info, 0, grid.Discount())
			So(err, ShouldBeNil)
			So(backup.Backup(seq, grid.Discount(), telemetry.NewNop()), ShouldBeNil)
			seqs = append(seqs, seq)
		}

		Convey("scheduling an obstacle change at a cell on the path repairs without error and clears the affected set", func() {
			target := fakemodel.State{X: 1, Y: 0}
			grid.ScheduleObstacle(1, target)
			schedule := map[int64][]model.ChangeKind{
				1: {model.ChangeObstacle},
			}

			visitsBefore := driver.Tree.Root().Mapping().TotalVisitCount()

			err := eng.Apply(1, schedule)
			So(err, ShouldBeNil)
			So(grid.Obstacle[target], ShouldBeTrue)
			So(len(driver.States.AffectedStates()), ShouldEqual, 0)

			// A structural repair re-simulates every invalidated sequence's
			// suffix and backs it up again, so the root mapping's total
			// visit count never drops below what it was pre-change (spec.md
			// §8 scenario S5: post-repair totalVisits is the pre-change value
			// plus however many re-simulations reached the root).
			So(driver.Tree.Root().Mapping().TotalVisitCount(), ShouldBeGreaterThanOrEqualTo, visitsBefore)
		})

		Convey("a schedule with no entries at the given time is a no-op", func() {
			err := eng.Apply(99, map[int64][]model.ChangeKind{})
			So(err, ShouldBeNil)
		})

		Convey("a reward-only change adjusts totalQ but never visit counts", func() {
			// grid.Start is every trial's entries[0].StateInfo(), so flagging
			// it guarantees earliestAffected finds index 0 in every backed-up
			// sequence, putting the root mapping's own entries inside
			// DeltaUpdate's touched range.
			target := grid.Start

			mapping := driver.Tree.Root().Mapping()
			type snapshot struct {
				visits int64
				totalQ float64
			}
			before := make(map[model.Action]snapshot, len(mapping.Entries()))
			for _, e := range mapping.Entries() {
				before[e.Action] = snapshot{visits: e.Visits, totalQ: e.TotalQ}
			}

			grid.ScheduleRewardChange(1, target, 50.0)
			schedule := map[int64][]model.ChangeKind{1: {model.ChangeReward}}
			err := eng.Apply(1, schedule)
			So(err, ShouldBeNil)

			anyChanged := false
			for _, e := range mapping.Entries() {
				b := before[e.Action]
				So(e.Visits, ShouldEqual, b.visits)
				if e.TotalQ != b.totalQ {
					anyChanged = true
				}
			}
			So(anyChanged, ShouldBeTrue)
		})
	})
}
