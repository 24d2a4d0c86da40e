package storetest

import (
	"errors"
	"testing"

	"bm-go/internal/bm"
)

func runTransactionTests(t *testing.T, factory StoreFactory) {
	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		store := factory(t)
		boom := errors.New("boom")

		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			if err := tx.InsertVersion(t.Context(), &bm.Version{UID: "v1", Name: "disk", CreatedAt: epoch}); err != nil {
				return err
			}
			if err := tx.UpsertBlock(t.Context(), block("v1", 0, "X", "c")); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want %v", err, boom)
		}

		err = bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			_, err := tx.GetVersion(t.Context(), "v1")
			return err
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("version survived rollback: %v", err)
		}
	})

	t.Run("RollbackAfterCommit", func(t *testing.T) {
		store := factory(t)
		tx, err := store.Begin(t.Context())
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := tx.InsertVersion(t.Context(), &bm.Version{UID: "v1", Name: "disk", CreatedAt: epoch}); err != nil {
			t.Fatalf("InsertVersion() error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Errorf("Rollback() after Commit error = %v, want nil", err)
		}

		inTx(t, store, func(tx bm.Tx) error {
			_, err := tx.GetVersion(t.Context(), "v1")
			return err
		})
	})

	t.Run("PanicRollsBack", func(t *testing.T) {
		store := factory(t)
		func() {
			defer func() {
				if recover() == nil {
					t.Error("WithTx() swallowed the panic")
				}
			}()
			_ = bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
				if err := tx.InsertVersion(t.Context(), &bm.Version{UID: "v1", Name: "disk", CreatedAt: epoch}); err != nil {
					return err
				}
				panic("boom")
			})
		}()

		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			_, err := tx.GetVersion(t.Context(), "v1")
			return err
		})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("version survived panic: %v", err)
		}
	})
}
