// Package storetest is a conformance suite for bm.Store implementations.
package storetest

import (
	"testing"
	"time"

	"bm-go/internal/bm"
)

// StoreFactory returns an empty, migrated store. It may use t.Cleanup for
// teardown.
type StoreFactory func(t *testing.T) bm.Store

// RunConformanceSuite runs every conformance test against stores built by
// factory. Each test gets a fresh store.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("Versions", func(t *testing.T) {
		runVersionTests(t, factory)
	})
	t.Run("Blocks", func(t *testing.T) {
		runBlockTests(t, factory)
	})
	t.Run("DeleteCandidates", func(t *testing.T) {
		runCandidateTests(t, factory)
	})
	t.Run("Stats", func(t *testing.T) {
		runStatsTests(t, factory)
	})
	t.Run("Transactions", func(t *testing.T) {
		runTransactionTests(t, factory)
	})
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, store bm.Store, fn func(tx bm.Tx) error) {
	t.Helper()
	if err := bm.WithTx(t.Context(), store, fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func insertVersion(t *testing.T, store bm.Store, uid, name string, created time.Time) *bm.Version {
	t.Helper()
	v := &bm.Version{
		UID:       uid,
		Name:      name,
		CreatedAt: created,
		Size:      4,
		SizeBytes: 4096,
		Validity:  bm.Valid,
	}
	inTx(t, store, func(tx bm.Tx) error {
		return tx.InsertVersion(t.Context(), v)
	})
	return v
}

func upsertBlocks(t *testing.T, store bm.Store, blocks ...*bm.Block) {
	t.Helper()
	inTx(t, store, func(tx bm.Tx) error {
		for _, b := range blocks {
			if err := tx.UpsertBlock(t.Context(), b); err != nil {
				return err
			}
		}
		return nil
	})
}

func block(versionUID string, seq int64, contentUID, checksum string) *bm.Block {
	return &bm.Block{
		VersionUID: versionUID,
		SeqID:      seq,
		ContentUID: contentUID,
		Checksum:   checksum,
		Size:       1024,
		Validity:   bm.Valid,
		WrittenAt:  epoch,
	}
}
