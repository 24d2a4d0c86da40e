package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"

	"bm-go/internal/bm"
	"bm-go/internal/database/migrations"
	"bm-go/internal/database/storetest"
)

// newTestStore opens a migrated file-backed store in a temp dir.
func newTestStore(t *testing.T) bm.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenConnection(path)
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("MigrateUp() error = %v", err)
	}
	db.Close()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Conformance(t *testing.T) {
	storetest.RunConformanceSuite(t, newTestStore)
}

func TestSQLiteStore_Memory(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) bm.Store {
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore(:memory:) error = %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestNewSQLiteStore_Unmigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	store, err := NewSQLiteStore(path)
	if err == nil {
		store.Close()
		t.Fatal("NewSQLiteStore() on unmigrated database succeeded, want error")
	}
}

func TestSQLiteStore_BackupTo(t *testing.T) {
	store := newTestStore(t).(*SQLiteStore)
	ctx := context.Background()

	err := bm.WithTx(ctx, store, func(tx bm.Tx) error {
		return tx.InsertVersion(ctx, &bm.Version{UID: "v1", Name: "disk"})
	})
	if err != nil {
		t.Fatalf("InsertVersion() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := store.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copied, err := NewSQLiteStore(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copied.Close()

	err = bm.WithTx(ctx, copied, func(tx bm.Tx) error {
		_, err := tx.GetVersion(ctx, "v1")
		return err
	})
	if err != nil {
		t.Errorf("GetVersion() on backup error = %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, bm.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", sql.ErrNoRows), bm.ErrNotFound},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, bm.ErrConflict},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, bm.ErrConflict},
		{"primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, bm.ErrAlreadyExists},
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, bm.ErrAlreadyExists},
		{"foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, bm.ErrNotFound},
		{"io", sqlite3.Error{Code: sqlite3.ErrIoErr}, bm.ErrStoreUnavailable},
		{"other", errors.New("disk on fire"), bm.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the cause", tt.err)
			}
		})
	}
}
