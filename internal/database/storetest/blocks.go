package storetest

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"bm-go/internal/bm"
)

func runBlockTests(t *testing.T, factory StoreFactory) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)

		b := block("v1", 0, "X", "csum1")
		upsertBlocks(t, store, b)
		upsertBlocks(t, store, b)

		inTx(t, store, func(tx bm.Tx) error {
			blocks, err := tx.ListBlocks(t.Context(), "v1")
			if err != nil {
				return err
			}
			if len(blocks) != 1 {
				t.Fatalf("ListBlocks() returned %d rows, want 1", len(blocks))
			}
			if !sameBlock(blocks[0], b) {
				t.Errorf("block = %+v, want %+v", blocks[0], b)
			}
			return nil
		})
	})

	t.Run("UpsertUpdatesInPlace", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		upsertBlocks(t, store, block("v1", 0, "X", "csum1"))

		updated := block("v1", 0, "Y", "csum2")
		updated.Size = 512
		updated.WrittenAt = epoch.Add(time.Hour)
		upsertBlocks(t, store, updated)

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.GetBlock(t.Context(), "v1", 0)
			if err != nil {
				return err
			}
			if !sameBlock(got, updated) {
				t.Errorf("GetBlock() = %+v, want %+v", got, updated)
			}
			blocks, err := tx.ListBlocks(t.Context(), "v1")
			if err != nil {
				return err
			}
			if len(blocks) != 1 {
				t.Errorf("ListBlocks() returned %d rows, want 1", len(blocks))
			}
			return nil
		})
	})

	t.Run("SparseBlock", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		upsertBlocks(t, store, block("v1", 3, "", ""))

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.GetBlock(t.Context(), "v1", 3)
			if err != nil {
				return err
			}
			if !got.IsSparse() || got.Checksum != "" {
				t.Errorf("GetBlock() = %+v, want sparse block", got)
			}
			return nil
		})
	})

	t.Run("UpsertWithoutVersion", func(t *testing.T) {
		store := factory(t)
		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			return tx.UpsertBlock(t.Context(), block("missing", 0, "X", "c"))
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("UpsertBlock(no version) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListBlocksOrdered", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		upsertBlocks(t, store, block("v1", 2, "C", "c"), block("v1", 0, "A", "a"), block("v1", 1, "", ""))

		inTx(t, store, func(tx bm.Tx) error {
			blocks, err := tx.ListBlocks(t.Context(), "v1")
			if err != nil {
				return err
			}
			for i, b := range blocks {
				if b.SeqID != int64(i) {
					t.Errorf("ListBlocks()[%d].SeqID = %d", i, b.SeqID)
				}
			}
			return nil
		})
	})

	t.Run("FindValidBlockByChecksum", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		bad := block("v1", 0, "X", "csum1")
		bad.Validity = bm.Invalid
		upsertBlocks(t, store, bad, block("v1", 1, "", ""))

		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			_, err := tx.FindValidBlockByChecksum(t.Context(), "csum1")
			return err
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("FindValidBlockByChecksum(invalid only) error = %v, want ErrNotFound", err)
		}

		upsertBlocks(t, store, block("v1", 2, "Y", "csum1"))
		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.FindValidBlockByChecksum(t.Context(), "csum1")
			if err != nil {
				return err
			}
			if got.ContentUID != "Y" {
				t.Errorf("FindValidBlockByChecksum() uid = %s, want Y", got.ContentUID)
			}
			return nil
		})
	})

	t.Run("FindBlockByUID", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		b := block("v1", 0, "X", "csum1")
		b.Validity = bm.Invalid
		upsertBlocks(t, store, b)

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.FindBlockByUID(t.Context(), "X")
			if err != nil {
				return err
			}
			if got.VersionUID != "v1" {
				t.Errorf("FindBlockByUID() version = %s, want v1", got.VersionUID)
			}
			if _, err := tx.FindBlockByUID(t.Context(), "Z"); !errors.Is(err, bm.ErrNotFound) {
				t.Errorf("FindBlockByUID(missing) error = %v, want ErrNotFound", err)
			}
			return nil
		})
	})

	t.Run("InvalidateBlocks", func(t *testing.T) {
		store := factory(t)
		for _, uid := range []string{"v1", "v2", "v3"} {
			insertVersion(t, store, uid, "disk", epoch)
		}
		upsertBlocks(t, store,
			block("v3", 0, "X", "csum1"),
			block("v1", 0, "X", "csum1"),
			block("v1", 1, "X", "csum1"),
			block("v2", 0, "X", "other"),
		)

		inTx(t, store, func(tx bm.Tx) error {
			uids, err := tx.ListVersionsWithValidBlock(t.Context(), "X", "csum1")
			if err != nil {
				return err
			}
			if want := []string{"v1", "v3"}; !reflect.DeepEqual(uids, want) {
				t.Errorf("ListVersionsWithValidBlock() = %v, want %v", uids, want)
			}
			n, err := tx.InvalidateBlocks(t.Context(), "X", "csum1")
			if err != nil {
				return err
			}
			if n != 3 {
				t.Errorf("InvalidateBlocks() = %d, want 3", n)
			}
			uids, err = tx.ListVersionsWithValidBlock(t.Context(), "X", "csum1")
			if err != nil {
				return err
			}
			if len(uids) != 0 {
				t.Errorf("ListVersionsWithValidBlock() after invalidation = %v, want none", uids)
			}
			other, err := tx.GetBlock(t.Context(), "v2", 0)
			if err != nil {
				return err
			}
			if other.Validity != bm.Valid {
				t.Error("block with a different checksum was invalidated")
			}
			return nil
		})
	})

	t.Run("ListContentUIDs", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		insertVersion(t, store, "v2", "disk", epoch)
		upsertBlocks(t, store,
			block("v1", 0, "ab12", "c1"),
			block("v1", 1, "ab34", "c2"),
			block("v1", 2, "", ""),
			block("v2", 0, "ab12", "c1"),
			block("v2", 1, "cd56", "c3"),
			block("v2", 2, "a_x", "c4"),
			block("v2", 3, "AB99", "c5"),
		)

		inTx(t, store, func(tx bm.Tx) error {
			all, err := tx.ListContentUIDs(t.Context(), "")
			if err != nil {
				return err
			}
			if want := []string{"AB99", "a_x", "ab12", "ab34", "cd56"}; !reflect.DeepEqual(all, want) {
				t.Errorf("ListContentUIDs(\"\") = %v, want %v", all, want)
			}
			ab, err := tx.ListContentUIDs(t.Context(), "ab")
			if err != nil {
				return err
			}
			if want := []string{"ab12", "ab34"}; !reflect.DeepEqual(ab, want) {
				t.Errorf("ListContentUIDs(ab) = %v, want %v", ab, want)
			}
			// Prefixes match case-sensitively.
			upper, err := tx.ListContentUIDs(t.Context(), "AB")
			if err != nil {
				return err
			}
			if want := []string{"AB99"}; !reflect.DeepEqual(upper, want) {
				t.Errorf("ListContentUIDs(AB) = %v, want %v", upper, want)
			}
			// "_" is matched literally.
			under, err := tx.ListContentUIDs(t.Context(), "a_")
			if err != nil {
				return err
			}
			if want := []string{"a_x"}; !reflect.DeepEqual(under, want) {
				t.Errorf("ListContentUIDs(a_) = %v, want %v", under, want)
			}
			return nil
		})
	})

	t.Run("DeleteAndEnqueue", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		upsertBlocks(t, store, block("v1", 0, "X", "c1"), block("v1", 1, "", ""), block("v1", 2, "Y", "c2"))

		inTx(t, store, func(tx bm.Tx) error {
			enq, err := tx.EnqueueVersionBlocks(t.Context(), "v1", epoch)
			if err != nil {
				return err
			}
			if enq != 2 {
				t.Errorf("EnqueueVersionBlocks() = %d, want 2", enq)
			}
			n, err := tx.DeleteBlocks(t.Context(), "v1")
			if err != nil {
				return err
			}
			if n != 3 {
				t.Errorf("DeleteBlocks() = %d, want 3", n)
			}
			counts, err := tx.CountDeletedBlocks(t.Context())
			if err != nil {
				return err
			}
			if counts[bm.PhaseMaybe] != 2 {
				t.Errorf("maybe candidates = %d, want 2", counts[bm.PhaseMaybe])
			}
			return nil
		})
	})
}

func sameBlock(a, b *bm.Block) bool {
	return a.VersionUID == b.VersionUID &&
		a.SeqID == b.SeqID &&
		a.ContentUID == b.ContentUID &&
		a.Checksum == b.Checksum &&
		a.Size == b.Size &&
		a.Validity == b.Validity &&
		a.WrittenAt.Equal(b.WrittenAt)
}
