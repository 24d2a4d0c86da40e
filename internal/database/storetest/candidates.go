package storetest

import (
	"testing"
	"time"

	"bm-go/internal/bm"
)

func enqueue(t *testing.T, store bm.Store, uid string, at time.Time) *bm.DeletedBlock {
	t.Helper()
	d := &bm.DeletedBlock{ContentUID: uid, Size: 1024, Phase: bm.PhaseMaybe, EnqueuedAt: at}
	inTx(t, store, func(tx bm.Tx) error {
		return tx.InsertDeletedBlock(t.Context(), d)
	})
	return d
}

func runCandidateTests(t *testing.T, factory StoreFactory) {
	t.Run("InsertAssignsIncreasingIDs", func(t *testing.T) {
		store := factory(t)
		a := enqueue(t, store, "X", epoch)
		b := enqueue(t, store, "X", epoch)
		if a.ID == 0 || b.ID <= a.ID {
			t.Errorf("ids = %d, %d, want increasing non-zero", a.ID, b.ID)
		}
	})

	t.Run("ListBeforeAndLimit", func(t *testing.T) {
		store := factory(t)
		enqueue(t, store, "A", epoch)
		enqueue(t, store, "B", epoch.Add(time.Minute))
		enqueue(t, store, "C", epoch.Add(2*time.Minute))
		enqueue(t, store, "D", epoch.Add(time.Hour))

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.ListDeleteCandidates(t.Context(), epoch.Add(2*time.Minute), 10)
			if err != nil {
				return err
			}
			if len(got) != 2 || got[0].ContentUID != "A" || got[1].ContentUID != "B" {
				t.Errorf("ListDeleteCandidates(before) = %v, want [A B]", uids(got))
			}
			if !got[0].EnqueuedAt.Equal(epoch) {
				t.Errorf("EnqueuedAt = %v, want %v", got[0].EnqueuedAt, epoch)
			}

			got, err = tx.ListDeleteCandidates(t.Context(), epoch.Add(2*time.Hour), 3)
			if err != nil {
				return err
			}
			if len(got) != 3 || got[2].ContentUID != "C" {
				t.Errorf("ListDeleteCandidates(limit 3) = %v, want [A B C]", uids(got))
			}
			return nil
		})
	})

	t.Run("PhasesAndCounts", func(t *testing.T) {
		store := factory(t)
		enqueue(t, store, "X", epoch)
		enqueue(t, store, "X", epoch)
		enqueue(t, store, "Y", epoch)

		inTx(t, store, func(tx bm.Tx) error {
			if err := tx.SetDeletePhase(t.Context(), "X", bm.PhaseSure); err != nil {
				return err
			}
			counts, err := tx.CountDeletedBlocks(t.Context())
			if err != nil {
				return err
			}
			if counts[bm.PhaseSure] != 2 || counts[bm.PhaseMaybe] != 1 {
				t.Errorf("CountDeletedBlocks() = %v, want sure=2 maybe=1", counts)
			}

			cands, err := tx.ListDeleteCandidates(t.Context(), epoch.Add(time.Second), 10)
			if err != nil {
				return err
			}
			for _, c := range cands {
				want := bm.PhaseMaybe
				if c.ContentUID == "X" {
					want = bm.PhaseSure
				}
				if c.Phase != want {
					t.Errorf("candidate %s phase = %v, want %v", c.ContentUID, c.Phase, want)
				}
			}
			return nil
		})
	})

	t.Run("DeleteAllRowsForUID", func(t *testing.T) {
		store := factory(t)
		enqueue(t, store, "X", epoch)
		enqueue(t, store, "X", epoch.Add(time.Minute))
		enqueue(t, store, "Y", epoch)

		inTx(t, store, func(tx bm.Tx) error {
			n, err := tx.DeleteDeletedBlocks(t.Context(), "X")
			if err != nil {
				return err
			}
			if n != 2 {
				t.Errorf("DeleteDeletedBlocks() = %d, want 2", n)
			}
			n, err = tx.DeleteDeletedBlocks(t.Context(), "X")
			if err != nil {
				return err
			}
			if n != 0 {
				t.Errorf("second DeleteDeletedBlocks() = %d, want 0", n)
			}
			counts, err := tx.CountDeletedBlocks(t.Context())
			if err != nil {
				return err
			}
			if counts[bm.PhaseMaybe] != 1 {
				t.Errorf("remaining candidates = %v, want maybe=1", counts)
			}
			return nil
		})
	})

	t.Run("EmptyCounts", func(t *testing.T) {
		store := factory(t)
		inTx(t, store, func(tx bm.Tx) error {
			counts, err := tx.CountDeletedBlocks(t.Context())
			if err != nil {
				return err
			}
			var total int64
			for _, n := range counts {
				total += n
			}
			if total != 0 {
				t.Errorf("CountDeletedBlocks() on empty store = %v", counts)
			}
			return nil
		})
	})
}

func uids(ds []*bm.DeletedBlock) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ContentUID
	}
	return out
}
