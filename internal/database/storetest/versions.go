package storetest

import (
	"errors"
	"testing"
	"time"

	"bm-go/internal/bm"
)

func runVersionTests(t *testing.T, factory StoreFactory) {
	t.Run("InsertAndGet", func(t *testing.T) {
		store := factory(t)
		want := insertVersion(t, store, "v1", "disk", epoch.Add(1500*time.Millisecond))

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.GetVersion(t.Context(), "v1")
			if err != nil {
				return err
			}
			if got.UID != want.UID || got.Name != want.Name || got.Size != want.Size ||
				got.SizeBytes != want.SizeBytes || got.Validity != bm.Valid {
				t.Errorf("GetVersion() = %+v, want %+v", got, want)
			}
			// Stored at second resolution.
			if !got.CreatedAt.Equal(epoch.Add(time.Second)) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, epoch.Add(time.Second))
			}
			return nil
		})
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := factory(t)
		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			_, err := tx.GetVersion(t.Context(), "nope")
			return err
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("GetVersion(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)
		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			return tx.InsertVersion(t.Context(), &bm.Version{UID: "v1", Name: "other", CreatedAt: epoch})
		})
		if !errors.Is(err, bm.ErrAlreadyExists) {
			t.Errorf("InsertVersion(duplicate) error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("ListOrder", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "u1", "b", epoch)
		insertVersion(t, store, "u2", "a", epoch.Add(time.Minute))
		insertVersion(t, store, "u3", "a", epoch.Add(2*time.Minute))

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.ListVersions(t.Context())
			if err != nil {
				return err
			}
			want := []string{"u2", "u3", "u1"}
			if len(got) != len(want) {
				t.Fatalf("ListVersions() returned %d versions, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].UID != want[i] {
					t.Errorf("ListVersions()[%d] = %s, want %s", i, got[i].UID, want[i])
				}
			}
			return nil
		})
	})

	t.Run("SetValidity", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)

		inTx(t, store, func(tx bm.Tx) error {
			if err := tx.SetVersionValidity(t.Context(), "v1", bm.Invalid); err != nil {
				return err
			}
			got, err := tx.GetVersion(t.Context(), "v1")
			if err != nil {
				return err
			}
			if got.Validity != bm.Invalid {
				t.Errorf("Validity = %v, want invalid", got.Validity)
			}
			return nil
		})

		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			return tx.SetVersionValidity(t.Context(), "missing", bm.Valid)
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("SetVersionValidity(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := factory(t)
		insertVersion(t, store, "v1", "disk", epoch)

		inTx(t, store, func(tx bm.Tx) error {
			return tx.DeleteVersion(t.Context(), "v1")
		})
		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			return tx.DeleteVersion(t.Context(), "v1")
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("second DeleteVersion() error = %v, want ErrNotFound", err)
		}
	})
}
