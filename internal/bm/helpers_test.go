package bm_test

import (
	"context"
	"strings"
	"testing"

	"bm-go/internal/bm"
	"bm-go/internal/testutil"
	"bm-go/internal/vault"
)

type testEnv struct {
	store    bm.Store
	clock    *testutil.StubClock
	logger   *testutil.TestLogger
	vault    *vault.MemoryVault
	versions *bm.VersionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	logger := testutil.NewTestLogger(t)
	v := testutil.NewTestVault()
	return &testEnv{
		store:    store,
		clock:    clock,
		logger:   logger,
		vault:    v,
		versions: bm.NewVersionManager(store, clock, testutil.NewStubIDGenerator(), logger),
	}
}

// writePayload stores data in the env vault and returns its content uid.
func (e *testEnv) writePayload(t *testing.T, data string) string {
	t.Helper()
	uid, err := e.vault.WritePayload(context.Background(), strings.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("WritePayload() error = %v", err)
	}
	return uid
}

// createVersion creates a version holding one block per content uid. An
// empty uid is a sparse block. The checksum of each block is "sum-<uid>".
func (e *testEnv) createVersion(t *testing.T, name string, uids ...string) string {
	t.Helper()
	ctx := context.Background()

	versionUID, err := e.versions.CreateVersion(ctx, name, int64(len(uids)), int64(len(uids))*1024)
	if err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	u := bm.NewBlockUpserter(e.store, e.clock, e.logger, 0)
	for i, uid := range uids {
		b := bm.Block{
			VersionUID: versionUID,
			SeqID:      int64(i),
			ContentUID: uid,
			Size:       1024,
			Validity:   bm.Valid,
		}
		if uid != "" {
			b.Checksum = "sum-" + uid
		}
		if err := u.SetBlock(ctx, b, false); err != nil {
			t.Fatalf("SetBlock() error = %v", err)
		}
	}
	if err := u.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return versionUID
}
