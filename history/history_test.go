package history

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

type fakeState struct{ x int }

func (s fakeState) Equals(other model.State) bool        { return other.(fakeState).x == s.x }
func (s fakeState) Hash() uint64                          { return uint64(s.x) }
func (s fakeState) DistanceTo(other model.State) float64  { return 0 }
func (s fakeState) String() string                        { return "fake" }

type fakeAction int

func (a fakeAction) Equals(other model.Action) bool { return other.(fakeAction) == a }
func (a fakeAction) Hash() uint64                    { return uint64(a) }
func (a fakeAction) BinNumber() (int, bool)          { return int(a), true }
func (a fakeAction) String() string                  { return "a" }

func newTestTree() *tree.Tree {
	actions := &tree.DiscretizedActionPool{
		NumBins:     2,
		BinToAction: func(bin int) model.Action { return fakeAction(bin) },
	}
	return tree.New(actions, tree.DiscreteObservationPool{}, rng.New(1), telemetry.NewNop())
}

func TestStoreAppendAndDelete(t *testing.T) {
	Convey("Given a store, a state pool and a tree root", t, func() {
		store := New()
		pool := statepool.New(telemetry.NewNop())
		tr := newTestTree()
		root := tr.Root()

		Convey("AppendEntry registers both a back-reference and a particle", func() {
			seq := store.NewSequence()
			info := pool.CreateOrGetInfo(fakeState{x: 1})
			e := store.AppendEntry(seq, info, fakeAction(0), nil, -1, 1.0, root)

			So(seq.Len(), ShouldEqual, 1)
			So(info.BackRefs(), ShouldContain, e.Ref())
			So(root.NumParticles(), ShouldEqual, 1)
		})

		Convey("DeleteSuffix releases back-references and particle membership", func() {
			seq := store.NewSequence()
			info := pool.CreateOrGetInfo(fakeState{x: 2})
			e0 := store.AppendEntry(seq, info, fakeAction(0), nil, -1, 1.0, root)
			store.AppendEntry(seq, info, fakeAction(1), nil, -1, 0.95, root)
			So(seq.Len(), ShouldEqual, 2)

			store.DeleteSuffix(seq, 1)
			So(seq.Len(), ShouldEqual, 1)
			So(root.NumParticles(), ShouldEqual, 1)
			So(info.BackRefs(), ShouldContain, e0.Ref())
		})

		Convey("SequencesIntersecting finds every sequence touching a flagged state", func() {
			infoA := pool.CreateOrGetInfo(fakeState{x: 10})
			infoB := pool.CreateOrGetInfo(fakeState{x: 11})

			seq1 := store.NewSequence()
			store.AppendEntry(seq1, infoA, fakeAction(0), nil, -1, 1.0, root)
			seq2 := store.NewSequence()
			store.AppendEntry(seq2, infoB, fakeAction(0), nil, -1, 1.0, root)

			found := store.SequencesIntersecting([]*statepool.StateInfo{infoA})
			So(len(found), ShouldEqual, 1)
			So(found[0].ID(), ShouldEqual, seq1.ID())
		})

		Convey("Detach fully removes a sequence and its back-references", func() {
			info := pool.CreateOrGetInfo(fakeState{x: 20})
			seq := store.NewSequence()
			store.AppendEntry(seq, info, fakeAction(0), nil, -1, 1.0, root)

			store.Detach(seq)
			_, ok := store.Get(seq.ID())
			So(ok, ShouldBeFalse)
			So(info.BackRefs(), ShouldBeEmpty)
			So(root.NumParticles(), ShouldEqual, 0)
		})

		Convey("a belief node's particle count always equals the number of live entries pointing at it", func() {
			child, _ := root.CreateOrGetChild(fakeAction(0), nil, nil)
			infoA := pool.CreateOrGetInfo(fakeState{x: 30})
			infoB := pool.CreateOrGetInfo(fakeState{x: 31})

			countEntriesAt := func(b *tree.BeliefNode) int {
				n := 0
				for _, seq := range store.All() {
					for _, e := range seq.Entries() {
						if e.Belief() == b {
							n++
						}
					}
				}
				return n
			}

			seq1 := store.NewSequence()
			store.AppendEntry(seq1, infoA, fakeAction(0), nil, -1, 1.0, root)
			store.AppendEntry(seq1, infoB, fakeAction(1), nil, -1, 0.95, child)
			seq2 := store.NewSequence()
			e2 := store.AppendEntry(seq2, infoA, fakeAction(0), nil, -1, 1.0, root)
			store.AppendEntry(seq2, infoB, fakeAction(1), nil, -1, 0.95, child)

			So(root.NumParticles(), ShouldEqual, countEntriesAt(root))
			So(child.NumParticles(), ShouldEqual, countEntriesAt(child))

			store.DeleteSuffix(seq2, e2.Index())
			So(root.NumParticles(), ShouldEqual, countEntriesAt(root))
			So(child.NumParticles(), ShouldEqual, countEntriesAt(child))

			store.Detach(seq1)
			So(root.NumParticles(), ShouldEqual, countEntriesAt(root))
			So(child.NumParticles(), ShouldEqual, countEntriesAt(child))
		})

		Convey("AppendEntry and DeleteSuffix keep head/tail marks in sync with a sequence's current endpoints", func() {
			child, _ := root.CreateOrGetChild(fakeAction(0), nil, nil)
			info := pool.CreateOrGetInfo(fakeState{x: 40})

			seq := store.NewSequence()
			store.AppendEntry(seq, info, fakeAction(0), nil, -1, 1.0, root)
			So(root.NumberOfHeads(), ShouldEqual, 1)
			So(root.NumberOfTails(), ShouldEqual, 1)

			store.AppendEntry(seq, info, fakeAction(1), nil, -1, 0.95, child)
			So(root.NumberOfHeads(), ShouldEqual, 1)
			So(root.NumberOfTails(), ShouldEqual, 0)
			So(child.NumberOfTails(), ShouldEqual, 1)

			store.DeleteSuffix(seq, 1)
			So(root.NumberOfHeads(), ShouldEqual, 1)
			So(child.NumberOfTails(), ShouldEqual, 0)

			store.DeleteSuffix(seq, 0)
			So(root.NumberOfHeads(), ShouldEqual, 0)
			So(root.NumberOfTails(), ShouldEqual, 0)
		})
	})
}
