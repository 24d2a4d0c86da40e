package bm_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"bm-go/internal/bm"
)

func TestVersionManager_CreateVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uid, err := env.versions.CreateVersion(ctx, "disk1", 10, 10240)
	if err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	v, err := env.versions.Get(ctx, uid)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Name != "disk1" || v.Size != 10 || v.SizeBytes != 10240 || v.Validity != bm.Valid {
		t.Errorf("Get() = %+v", v)
	}
	if !v.CreatedAt.Equal(env.clock.Now()) {
		t.Errorf("CreatedAt = %v, want %v", v.CreatedAt, env.clock.Now())
	}
}

func TestVersionManager_GetMissing(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.versions.Get(context.Background(), "nope"); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestVersionManager_ListOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	create := func(name string) string {
		uid, err := env.versions.CreateVersion(ctx, name, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(time.Minute)
		return uid
	}
	b1 := create("b")
	a1 := create("a")
	b2 := create("b")
	a2 := create("a")

	versions, err := env.versions.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []string
	for _, v := range versions {
		got = append(got, v.UID)
	}
	if want := []string{a1, a2, b1, b2}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestVersionManager_MarkInvalidAndValid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.createVersion(t, "disk")

	if err := env.versions.MarkInvalid(ctx, uid); err != nil {
		t.Fatalf("MarkInvalid() error = %v", err)
	}
	v, _ := env.versions.Get(ctx, uid)
	if v.Validity != bm.Invalid {
		t.Errorf("Validity after MarkInvalid = %v", v.Validity)
	}

	if err := env.versions.MarkValid(ctx, uid); err != nil {
		t.Fatalf("MarkValid() error = %v", err)
	}
	v, _ = env.versions.Get(ctx, uid)
	if v.Validity != bm.Valid {
		t.Errorf("Validity after MarkValid = %v", v.Validity)
	}

	if err := env.versions.MarkInvalid(ctx, "missing"); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("MarkInvalid(missing) error = %v, want ErrNotFound", err)
	}
}

func TestVersionManager_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Ten blocks, two of them sparse.
	uids := []string{"u0", "u1", "", "u3", "u4", "u5", "", "u7", "u8", "u9"}
	uid := env.createVersion(t, "disk", uids...)
	// v2 shares three payloads with the version being deleted.
	other := env.createVersion(t, "disk", "u1", "u5", "u9", "w0")

	removed, err := env.versions.Delete(ctx, uid)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if removed != 10 {
		t.Errorf("Delete() = %d, want 10", removed)
	}

	if _, err := env.versions.Get(ctx, uid); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if _, err := env.versions.ListBlocks(ctx, uid); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("ListBlocks() after Delete error = %v, want ErrNotFound", err)
	}

	pending, err := bm.NewCollector(env.store, env.clock, env.logger, bm.CollectorConfig{}).Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if pending[bm.PhaseMaybe] != 8 {
		t.Errorf("candidates = %d, want 8", pending[bm.PhaseMaybe])
	}

	kept, err := env.versions.ListBlocks(ctx, other)
	if err != nil {
		t.Fatalf("ListBlocks(other) error = %v", err)
	}
	wantKept := []string{"u1", "u5", "u9", "w0"}
	if len(kept) != len(wantKept) {
		t.Fatalf("other version has %d blocks, want %d", len(kept), len(wantKept))
	}
	for i, b := range kept {
		if b.ContentUID != wantKept[i] || b.Validity != bm.Valid {
			t.Errorf("other block %d = %q (validity %v), want valid %q", i, b.ContentUID, b.Validity, wantKept[i])
		}
	}

	if _, err := env.versions.Delete(ctx, uid); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestVersionManager_ListBlocks(t *testing.T) {
	env := newTestEnv(t)
	uid := env.createVersion(t, "disk", "a", "", "c")

	blocks, err := env.versions.ListBlocks(context.Background(), uid)
	if err != nil {
		t.Fatalf("ListBlocks() error = %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("ListBlocks() returned %d blocks, want 3", len(blocks))
	}
	if !blocks[1].IsSparse() || blocks[2].ContentUID != "c" {
		t.Errorf("ListBlocks() = %+v, %+v", blocks[1], blocks[2])
	}
}

func TestVersionManager_MarkBlocksInvalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.createVersion(t, "disk", "X", "Y")
	v2 := env.createVersion(t, "disk", "Y", "X", "X")
	v3 := env.createVersion(t, "other", "Z")

	affected, err := env.versions.MarkBlocksInvalid(ctx, "X", "sum-X")
	if err != nil {
		t.Fatalf("MarkBlocksInvalid() error = %v", err)
	}
	want := []string{v1, v2}
	if v2 < v1 {
		want = []string{v2, v1}
	}
	if !reflect.DeepEqual(affected, want) {
		t.Errorf("MarkBlocksInvalid() = %v, want %v", affected, want)
	}

	for _, uid := range []string{v1, v2} {
		v, _ := env.versions.Get(ctx, uid)
		if v.Validity != bm.Invalid {
			t.Errorf("version %s validity = %v, want invalid", uid, v.Validity)
		}
		blocks, _ := env.versions.ListBlocks(ctx, uid)
		for _, b := range blocks {
			wantValid := bm.Valid
			if b.ContentUID == "X" {
				wantValid = bm.Invalid
			}
			if b.Validity != wantValid {
				t.Errorf("block %s/%d validity = %v, want %v", uid, b.SeqID, b.Validity, wantValid)
			}
		}
	}
	if v, _ := env.versions.Get(ctx, v3); v.Validity != bm.Valid {
		t.Error("unrelated version was invalidated")
	}

	again, err := env.versions.MarkBlocksInvalid(ctx, "X", "sum-X")
	if err != nil {
		t.Fatalf("repeat MarkBlocksInvalid() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("repeat MarkBlocksInvalid() = %v, want none", again)
	}
}

func TestVersionManager_MarkBlocksInvalidChecksumMustMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.createVersion(t, "disk", "X")

	affected, err := env.versions.MarkBlocksInvalid(ctx, "X", "some-other-sum")
	if err != nil {
		t.Fatal(err)
	}
	if len(affected) != 0 {
		t.Errorf("MarkBlocksInvalid(wrong checksum) = %v, want none", affected)
	}
	if v, _ := env.versions.Get(ctx, uid); v.Validity != bm.Valid {
		t.Error("version invalidated by a checksum mismatch")
	}
}

func TestVersionManager_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var uids []string
	for range 3 {
		uid := env.createVersion(t, "disk", "a")
		uids = append(uids, uid)
		err := env.versions.RecordStats(ctx, &bm.Stats{
			VersionUID:   uid,
			VersionName:  "disk",
			BytesWritten: 1024,
			Duration:     3 * time.Second,
		})
		if err != nil {
			t.Fatalf("RecordStats() error = %v", err)
		}
		env.clock.Advance(time.Hour)
	}

	last, err := env.versions.ListStats(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListStats() error = %v", err)
	}
	if len(last) != 2 || last[0].VersionUID != uids[1] || last[1].VersionUID != uids[2] {
		t.Errorf("ListStats(2) = %+v, want %v then %v", last, uids[1], uids[2])
	}
	if last[1].Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", last[1].Duration)
	}

	none, err := env.versions.ListStats(ctx, "", 0)
	if err != nil || none != nil {
		t.Errorf("ListStats(0) = %v, %v, want nil, nil", none, err)
	}

	err = env.versions.RecordStats(ctx, &bm.Stats{VersionUID: uids[0]})
	if !errors.Is(err, bm.ErrAlreadyExists) {
		t.Errorf("second RecordStats() error = %v, want ErrAlreadyExists", err)
	}
}
