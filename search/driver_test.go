package search

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/internal/fakemodel"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

func newTestDriver() (*Driver, *fakemodel.Grid) {
	r := rng.New(7)
	log := telemetry.NewNop()
	grid := fakemodel.New(3, 3, r)
	states := statepool.New(log)
	store := history.New()
	t := tree.New(grid.ActionPool(), grid.ObservationPool(), r, log)
	cfg := Config{ExploreCoef: 1.0, DepthThreshold: 0.01, MaxDistTry: 10, DistThreshold: 1.0}
	return New(grid, states, store, t, r, cfg, log), grid
}

func TestSingleSearch(t *testing.T) {
	Convey("Given a driver over a small grid world", t, func() {
		d, grid := newTestDriver()
		info := d.States.CreateOrGetInfo(grid.Start)

		Convey("a first trial from a brand-new root ends on its expansion entry, which carries an action", func() {
			seq, err := d.SingleSearch(d.Tree.Root(), info, 0, grid.Discount())
			So(err, ShouldBeNil)
			So(seq.Len(), ShouldBeGreaterThan, 0)
			So(seq.Last().Action(), ShouldNotBeNil)
		})

		Convey("every non-final entry carries an action, and a trial from a brand-new root expands and bootstraps", func() {
			seq, err := d.SingleSearch(d.Tree.Root(), info, 0, grid.Discount())
			So(err, ShouldBeNil)
			for i := 0; i < seq.Len()-1; i++ {
				So(seq.At(i).Action(), ShouldNotBeNil)
			}
			_, ok := seq.Last().Bootstrap()
			So(ok, ShouldBeTrue)
		})

		Convey("repeated trials eventually exhaust the root's untried actions", func() {
			for i := 0; i < 20; i++ {
				_, err := d.SingleSearch(d.Tree.Root(), info, 0, grid.Discount())
				So(err, ShouldBeNil)
			}
			_, ok := d.Tree.Root().Mapping().GetNextActionToTry()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSingleSearchTerminalShortCircuit(t *testing.T) {
	Convey("Given a driver whose start state is already terminal", t, func() {
		d, grid := newTestDriver()
		grid.Start = grid.Goal
		info := d.States.CreateOrGetInfo(grid.Start)

		Convey("the trial produces a length-1 sequence carrying the terminal's final reward", func() {
			seq, err := d.SingleSearch(d.Tree.Root(), info, 0, grid.Discount())
			So(err, ShouldBeNil)
			So(seq.Len(), ShouldEqual, 1)
			So(seq.Last().Action(), ShouldBeNil)
			So(seq.Last().Reward(), ShouldEqual, grid.FinalReward(grid.Goal))
		})
	})
}

func TestSingleSearchIllegalActionPenalty(t *testing.T) {
	Convey("Given a driver started in a grid corner", t, func() {
		d, grid := newTestDriver()
		corner := fakemodel.State{X: 0, Y: 0}
		info := d.States.CreateOrGetInfo(corner)

		Convey("an illegal action self-loops with the illegal penalty rather than moving", func() {
			foundIllegal := false
			for i := 0; i < 50 && !foundIllegal; i++ {
				seq, err := d.SingleSearch(d.Tree.Root(), info, 0, grid.Discount())
				So(err, ShouldBeNil)
				for j := 0; j < seq.Len()-1; j++ {
					e := seq.At(j)
					if e.Action() == nil || e.Reward() != grid.IllegalPenalty() {
						continue
					}
					foundIllegal = true
					next := seq.At(j + 1)
					So(next.StateInfo().State(), ShouldEqual, e.StateInfo().State())
				}
			}
			So(foundIllegal, ShouldBeTrue)
		})
	})
}
