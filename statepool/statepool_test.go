package statepool

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/telemetry"
)

type fakeState struct{ x int }

func (s fakeState) Equals(other model.State) bool    { return other.(fakeState).x == s.x }
func (s fakeState) Hash() uint64                     { return uint64(s.x) }
func (s fakeState) DistanceTo(other model.State) float64 { return 0 }
func (s fakeState) String() string                   { return "fake" }

func TestPoolCanonicalization(t *testing.T) {
	Convey("Given a fresh pool", t, func() {
		p := New(telemetry.NewNop())

		Convey("inserting two equal states returns the same StateInfo", func() {
			a := p.CreateOrGetInfo(fakeState{x: 3})
			b := p.CreateOrGetInfo(fakeState{x: 3})
			So(a, ShouldEqual, b)
			So(p.Size(), ShouldEqual, 1)
		})

		Convey("inserting distinct states assigns distinct dense ids", func() {
			a := p.CreateOrGetInfo(fakeState{x: 1})
			b := p.CreateOrGetInfo(fakeState{x: 2})
			So(a.ID(), ShouldNotEqual, b.ID())
			So(p.Size(), ShouldEqual, 2)
		})

		Convey("SetChangeFlags marks a state affected until reset", func() {
			info := p.CreateOrGetInfo(fakeState{x: 7})
			p.SetChangeFlags(info, model.ChangeObstacle)
			So(info.Flags().Has(model.ChangeObstacle), ShouldBeTrue)
			So(len(p.AffectedStates()), ShouldEqual, 1)

			p.ResetAffectedStates()
			So(info.Flags(), ShouldEqual, model.ChangeKind(0))
			So(len(p.AffectedStates()), ShouldEqual, 0)
		})

		Convey("back-references track and release entry handles", func() {
			info := p.CreateOrGetInfo(fakeState{x: 9})
			ref := EntryRef{SequenceID: 1, Index: 0}
			info.AddBackRef(ref)
			So(info.BackRefs(), ShouldResemble, []EntryRef{ref})

			info.RemoveBackRef(ref)
			So(info.BackRefs(), ShouldBeEmpty)
		})
	})
}
