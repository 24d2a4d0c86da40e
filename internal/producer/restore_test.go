package producer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"bm-go/internal/bm"
	"bm-go/internal/producer"
	"bm-go/internal/testutil"
)

// tamperingVault serves garbage for the listed uids.
type tamperingVault struct {
	bm.Vault
	bad map[string]bool
}

func (v *tamperingVault) ReadPayload(ctx context.Context, uid string, w io.Writer) error {
	if v.bad[uid] {
		_, err := io.Copy(w, strings.NewReader("XXXXXXXX"))
		return err
	}
	return v.Vault.ReadPayload(ctx, uid, w)
}

func TestRestore_RoundTrip(t *testing.T) {
	e := newEnv(t, 2)
	data := sample()
	res := e.backup(t, "disk", data)

	r := producer.NewRestorer(e.versions, e.vault, e.logger)
	var out memWriterAt
	got, err := r.Restore(context.Background(), res.VersionUID, &out)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !bytes.Equal(out.buf, data) {
		t.Errorf("restored %q, want %q", out.buf, data)
	}
	if got.Blocks != 5 || got.Bytes != int64(len(data)) || got.Sparse != 1 || len(got.Corrupt) != 0 {
		t.Errorf("Restore() = %+v", got)
	}
}

func TestRestore_Missing(t *testing.T) {
	e := newEnv(t, 0)
	r := producer.NewRestorer(e.versions, e.vault, e.logger)

	_, err := r.Restore(context.Background(), "nope", &memWriterAt{})
	if !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("Restore(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRestore_ChecksumMismatch(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	res := e.backup(t, "one", sample())
	other := e.backup(t, "two", []byte("BBBBBBBB"))

	blocks, err := e.versions.ListBlocks(ctx, res.VersionUID)
	if err != nil {
		t.Fatal(err)
	}
	// Block 3 holds the B payload shared with the second version.
	v := &tamperingVault{Vault: e.vault, bad: map[string]bool{blocks[3].ContentUID: true}}
	r := producer.NewRestorer(e.versions, v, e.logger)

	var out memWriterAt
	got, err := r.Restore(ctx, res.VersionUID, &out)
	if !errors.Is(err, producer.ErrCorrupt) {
		t.Fatalf("Restore() error = %v, want ErrCorrupt", err)
	}
	if !reflect.DeepEqual(got.Corrupt, []int64{3}) {
		t.Errorf("Corrupt = %v, want [3]", got.Corrupt)
	}
	if want := []string{res.VersionUID, other.VersionUID}; !reflect.DeepEqual(got.Invalidated, want) {
		t.Errorf("Invalidated = %v, want %v", got.Invalidated, want)
	}
	// The blocks after the bad one are still restored in place.
	if !bytes.Equal(out.buf[32:], []byte("tail")) {
		t.Errorf("tail = %q, want %q", out.buf[32:], "tail")
	}

	for _, uid := range []string{res.VersionUID, other.VersionUID} {
		ver, err := e.versions.Get(ctx, uid)
		if err != nil {
			t.Fatal(err)
		}
		if ver.Validity != bm.Invalid {
			t.Errorf("version %s still valid", uid)
		}
	}
	if _, found, _ := e.dedup.FindValidBlockByChecksum(ctx, blocks[3].Checksum); found {
		t.Error("corrupt payload still offered for dedup")
	}
}

func TestRestore_RejectsOversizedBlock(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	uid, err := e.versions.CreateVersion(ctx, "disk", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	err = bm.WithTx(ctx, e.store, func(tx bm.Tx) error {
		return tx.UpsertBlock(ctx, &bm.Block{VersionUID: uid, SeqID: 0, Size: bm.MaxBlockSize + 1, Validity: bm.Valid})
	})
	if err != nil {
		t.Fatal(err)
	}

	r := producer.NewRestorer(e.versions, e.vault, e.logger)
	got, err := r.Restore(ctx, uid, &memWriterAt{})
	if err == nil {
		t.Fatal("Restore() of an oversized sparse block succeeded")
	}
	if got.Blocks != 0 {
		t.Errorf("Restore() wrote %d blocks", got.Blocks)
	}
}

func TestVerify(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	res := e.backup(t, "disk", sample())
	r := producer.NewRestorer(e.versions, e.vault, e.logger)

	got, err := r.Verify(ctx, res.VersionUID)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Blocks != 5 {
		t.Errorf("Verify() blocks = %d, want 5", got.Blocks)
	}

	blocks, err := e.versions.ListBlocks(ctx, res.VersionUID)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.vault.DeletePayload(ctx, blocks[0].ContentUID); err != nil {
		t.Fatal(err)
	}

	got, err = r.Verify(ctx, res.VersionUID)
	if !errors.Is(err, producer.ErrCorrupt) {
		t.Fatalf("Verify() after payload loss error = %v, want ErrCorrupt", err)
	}
	// Blocks 0 and 2 share the lost payload.
	if !reflect.DeepEqual(got.Corrupt, []int64{0, 2}) {
		t.Errorf("Corrupt = %v, want [0 2]", got.Corrupt)
	}
	if !reflect.DeepEqual(got.Invalidated, []string{res.VersionUID}) {
		t.Errorf("Invalidated = %v, want [%s]", got.Invalidated, res.VersionUID)
	}
}

func TestReconcile(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()

	kept := e.backup(t, "kept", []byte("AAAAAAAA"))
	gone := e.backup(t, "gone", []byte("BBBBBBBB"))
	if _, err := e.versions.Delete(ctx, gone.VersionUID); err != nil {
		t.Fatal(err)
	}
	orphan, err := e.vault.WritePayload(ctx, strings.NewReader("stray"), 5)
	if err != nil {
		t.Fatal(err)
	}

	r := producer.NewReconciler(e.dedup, e.vault, testutil.NewTestLogger(t))

	res, err := r.Reconcile(ctx, "", false)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Stored != 3 || !reflect.DeepEqual(res.Orphans, []string{orphan}) || res.Deleted != 0 {
		t.Errorf("Reconcile() = %+v, want 3 stored, orphan %s", res, orphan)
	}
	if e.vault.Len() != 3 {
		t.Errorf("dry run removed payloads")
	}

	res, err = r.Reconcile(ctx, "", true)
	if err != nil {
		t.Fatalf("Reconcile(remove) error = %v", err)
	}
	if res.Deleted != 1 || e.vault.Len() != 2 {
		t.Errorf("Reconcile(remove) deleted %d, vault holds %d", res.Deleted, e.vault.Len())
	}

	rr := producer.NewRestorer(e.versions, e.vault, e.logger)
	if _, err := rr.Verify(ctx, kept.VersionUID); err != nil {
		t.Errorf("Verify() after reconcile error = %v", err)
	}
}
