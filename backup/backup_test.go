package backup

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niceyeti/abtsolver/history"
	"github.com/niceyeti/abtsolver/internal/fakemodel"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/search"
	"github.com/niceyeti/abtsolver/statepool"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

func newFixture() (*search.Driver, *fakemodel.Grid) {
	r := rng.New(3)
	log := telemetry.NewNop()
	grid := fakemodel.New(3, 3, r)
	states := statepool.New(log)
	store := history.New()
	tr := tree.New(grid.ActionPool(), grid.ObservationPool(), r, log)
	cfg := search.Config{ExploreCoef: 1.0, DepthThreshold: 0.01, MaxDistTry: 10, DistThreshold: 1.0}
	return search.New(grid, states, store, tr, r, cfg, log), grid
}

func TestBackupUnbackupRoundTrip(t *testing.T) {
	Convey("Given a driver that has run several trials", t, func() {
		d, grid := newFixture()
		info := d.States.CreateOrGetInfo(grid.Start)
		gamma := grid.Discount()

		var seqs []*history.HistorySequence
		for i := 0; i < 8; i++ {
			seq, err := d.SingleSearch(d.Tree.Root(), info, 0, gamma)
			So(err, ShouldBeNil)
			seqs = append(seqs, seq)
		}

		Convey("Backup then Unbackup restores every visited entry's bookkeeping to zero", func() {
			for _, seq := range seqs {
				So(Backup(seq, gamma, telemetry.NewNop()), ShouldBeNil)
			}
			root := d.Tree.Root()
			visitedBefore := root.Mapping().NumberOfVisitedEntries()
			So(visitedBefore, ShouldBeGreaterThan, 0)

			for i := len(seqs) - 1; i >= 0; i-- {
				So(Unbackup(seqs[i], gamma, telemetry.NewNop()), ShouldBeNil)
			}

			for _, e := range root.Mapping().Entries() {
				So(e.Visits, ShouldEqual, 0)
				So(e.TotalQ, ShouldEqual, 0)
			}
		})

		Convey("UnbackupSuffix/BackupSuffix only touch entries at or after the restore index", func() {
			seq := seqs[0]
			So(Backup(seq, gamma, telemetry.NewNop()), ShouldBeNil)

			if seq.Len() < 2 {
				return
			}
			prefixEntry := seq.At(0)
			prefixMapping := prefixEntry.Belief().Mapping()
			prefixEntryHandle, _ := prefixMapping.GetEntry(prefixEntry.Action())
			visitsBefore := prefixEntryHandle.Visits

			So(UnbackupSuffix(seq, 1, gamma, telemetry.NewNop()), ShouldBeNil)

			So(prefixEntryHandle.Visits, ShouldEqual, visitsBefore)

			So(BackupSuffix(seq, 1, gamma, telemetry.NewNop()), ShouldBeNil)
		})
	})
}

func TestComputeG(t *testing.T) {
	Convey("Given the sequence of a single trial from a brand-new root", t, func() {
		d, grid := newFixture()
		info := d.States.CreateOrGetInfo(grid.Start)
		seq, err := d.SingleSearch(d.Tree.Root(), info, 0, grid.Discount())
		So(err, ShouldBeNil)

		g := ComputeG(seq, grid.Discount())
		Convey("g has one more entry than the sequence and ends at the bootstrap or zero", func() {
			So(len(g), ShouldEqual, seq.Len()+1)
			bootstrap, _ := seq.Last().Bootstrap()
			So(g[seq.Len()], ShouldEqual, bootstrap)
		})
	})
}
