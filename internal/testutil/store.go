package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"bm-go/internal/bm"
	"bm-go/internal/database"
	"bm-go/internal/database/migrations"
)

// NewTestStore returns a migrated SQLite store in a temp directory, closed
// when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bm.db")
	db, err := database.OpenConnection(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// ErrInjected is the error FlakyStore returns while failing.
var ErrInjected = errors.New("injected store failure")

// FlakyStore wraps a store and fails Begin while Fail is set.
type FlakyStore struct {
	bm.Store

	mu   sync.Mutex
	fail bool
}

func NewFlakyStore(inner bm.Store) *FlakyStore {
	return &FlakyStore{Store: inner}
}

// SetFailing toggles failure injection.
func (s *FlakyStore) SetFailing(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *FlakyStore) Begin(ctx context.Context) (bm.Tx, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return nil, bm.NewStoreError("begin", bm.ErrStoreUnavailable, ErrInjected)
	}
	return s.Store.Begin(ctx)
}
