package search

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/rng"
)

func TestBandit(t *testing.T) {
	Convey("Given a fresh bandit", t, func() {
		b := NewBandit()

		Convey("both arms start at equal probability", func() {
			So(b.Probability(RandHeuristic), ShouldEqual, 0.5)
			So(b.Probability(POL), ShouldEqual, 0.5)
		})

		Convey("probabilities always sum to 1 after updates", func() {
			b.UpdateStrategyProbabilities(RandHeuristic, 4)
			b.UpdateStrategyProbabilities(POL, -2)
			So(b.Probability(RandHeuristic)+b.Probability(POL), ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("a strategy with sustained positive improvement is favored over time", func() {
			for i := 0; i < 10; i++ {
				b.UpdateStrategyProbabilities(POL, 3)
			}
			So(b.Probability(POL), ShouldBeGreaterThan, b.Probability(RandHeuristic))
			So(b.UseCount(POL), ShouldEqual, 10)
		})

		Convey("an extreme improvement is clamped so the other arm never collapses to zero", func() {
			b.UpdateStrategyProbabilities(RandHeuristic, 1e9)
			So(b.Probability(POL), ShouldBeGreaterThan, 0)
		})

		Convey("Choose respects the arm distribution deterministically for a fixed seed", func() {
			b.UpdateStrategyProbabilities(RandHeuristic, 10)
			b.UpdateStrategyProbabilities(RandHeuristic, 10)
			r := rng.New(42)
			counts := map[Strategy]int{}
			for i := 0; i < 100; i++ {
				counts[b.Choose(r)]++
			}
			So(counts[RandHeuristic], ShouldBeGreaterThan, counts[POL])
		})
	})
}
