package engine

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/config"
	"github.com/niceyeti/abtsolver/internal/fakemodel"
	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/telemetry"
)

func testConfig() config.SearchConfig {
	return config.SearchConfig{
		SBT: config.SBTConfig{
			NParticles:  50,
			MaxTrials:   40,
			MaxDistTry:  10,
			ExploreCoef: 1.0,
			DepthTh:     0.01,
			DistTh:      1.0,
		},
		Problem: config.ProblemConfig{Discount: 0.95},
	}
}

func TestSolverGenPol(t *testing.T) {
	Convey("Given a freshly constructed Solver over a small grid", t, func() {
		r := rng.New(1)
		grid := fakemodel.New(3, 3, r)
		s := New(grid, grid.ActionPool(), grid.ObservationPool(), testConfig(), 1, telemetry.NewNop())

		Convey("GenPol runs up to MaxTrials trials and leaves a best action at the root", func() {
			ran, err := s.GenPol(context.Background())
			So(err, ShouldBeNil)
			So(ran, ShouldEqual, 40)

			action, ok := s.GetBestAction()
			So(ok, ShouldBeTrue)
			So(action, ShouldNotBeNil)
			So(s.GetQValue(), ShouldBeGreaterThan, -1000)
		})

		Convey("GenPol stops early when the context is already canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			ran, err := s.GenPol(ctx)
			So(err, ShouldBeNil)
			So(ran, ShouldEqual, 0)
		})

		Convey("Reconfigure updates the live search driver's tunables", func() {
			updated := testConfig()
			updated.SBT.ExploreCoef = 99
			s.Reconfigure(updated)
			So(s.driver.Cfg.ExploreCoef, ShouldEqual, float64(99))
		})

		Convey("ApplyChange with an empty schedule is a no-op", func() {
			err := s.ApplyChange(0, map[int64][]model.ChangeKind{})
			So(err, ShouldBeNil)
		})

		Convey("RunSim steps the real state using the root's best action and advances simTime", func() {
			_, err := s.GenPol(context.Background())
			So(err, ShouldBeNil)

			before := s.SimTime()
			res, err := s.RunSim(map[int64][]model.ChangeKind{})
			So(err, ShouldBeNil)
			So(s.SimTime(), ShouldEqual, before+1)
			if res.Legal {
				So(s.CurrentState(), ShouldEqual, res.NextState)
			}
		})

		Convey("RunSim reports ErrNoLegalAction before any search has run", func() {
			_, err := s.RunSim(map[int64][]model.ChangeKind{})
			So(err, ShouldEqual, ErrNoLegalAction)
		})

		Convey("RunSim replenishes the reached belief node's particles up to the configured cap", func() {
			cfg := testConfig()
			cfg.SBT.NParticles = 5
			s2 := New(grid, grid.ActionPool(), grid.ObservationPool(), cfg, 1, telemetry.NewNop())
			_, err := s2.GenPol(context.Background())
			So(err, ShouldBeNil)

			action, ok := s2.GetBestAction()
			So(ok, ShouldBeTrue)

			res, err := s2.RunSim(map[int64][]model.ChangeKind{})
			So(err, ShouldBeNil)
			if res.Legal {
				node, _ := s2.tree.Root().CreateOrGetChild(action, res.Observation, nil)
				So(node.NumParticles(), ShouldBeGreaterThanOrEqualTo, 5)
			}
		})
	})
}

func TestSolverDeterminism(t *testing.T) {
	Convey("Given two freshly constructed Solvers built from the same seed and Model parameters", t, func() {
		build := func() *Solver {
			r := rng.New(3)
			grid := fakemodel.New(4, 4, r)
			return New(grid, grid.ActionPool(), grid.ObservationPool(), testConfig(), 3, telemetry.NewNop())
		}
		a := build()
		b := build()

		Convey("GenPol produces identical best actions and Q-values at the root", func() {
			_, errA := a.GenPol(context.Background())
			_, errB := b.GenPol(context.Background())
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)

			actionA, okA := a.GetBestAction()
			actionB, okB := b.GetBestAction()
			So(okA, ShouldBeTrue)
			So(okB, ShouldBeTrue)
			So(actionA.Equals(actionB), ShouldBeTrue)
			So(a.GetQValue(), ShouldEqual, b.GetQValue())
		})
	})
}
