package bm_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"bm-go/internal/bm"
)

func TestDedupIndex_FindValidBlockByChecksum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := bm.NewDedupIndex(env.store)

	env.createVersion(t, "disk", "a", "", "b")

	tests := []struct {
		name      string
		checksum  string
		wantUID   string
		wantFound bool
	}{
		{"hit", "sum-a", "a", true},
		{"miss", "sum-zzz", "", false},
		{"empty checksum", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, found, err := idx.FindValidBlockByChecksum(ctx, tt.checksum)
			if err != nil {
				t.Fatalf("FindValidBlockByChecksum() error = %v", err)
			}
			if uid != tt.wantUID || found != tt.wantFound {
				t.Errorf("FindValidBlockByChecksum(%q) = %q, %v, want %q, %v",
					tt.checksum, uid, found, tt.wantUID, tt.wantFound)
			}
		})
	}
}

func TestDedupIndex_IgnoresInvalidBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := bm.NewDedupIndex(env.store)

	env.createVersion(t, "disk", "a")
	if _, err := env.versions.MarkBlocksInvalid(ctx, "a", "sum-a"); err != nil {
		t.Fatal(err)
	}

	if _, found, err := idx.FindValidBlockByChecksum(ctx, "sum-a"); err != nil || found {
		t.Errorf("FindValidBlockByChecksum() after invalidation found = %v, err = %v", found, err)
	}
}

func TestDedupIndex_ListAllContentUIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := bm.NewDedupIndex(env.store)

	env.createVersion(t, "one", "ab1", "", "cd2")
	env.createVersion(t, "two", "ab1", "ab3")

	all, err := idx.ListAllContentUIDs(ctx, "")
	if err != nil {
		t.Fatalf("ListAllContentUIDs() error = %v", err)
	}
	if want := []string{"ab1", "ab3", "cd2"}; !reflect.DeepEqual(all, want) {
		t.Errorf("ListAllContentUIDs() = %v, want %v", all, want)
	}

	ab, err := idx.ListAllContentUIDs(ctx, "ab")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"ab1", "ab3"}; !reflect.DeepEqual(ab, want) {
		t.Errorf("ListAllContentUIDs(ab) = %v, want %v", ab, want)
	}
}

func TestDedupIndex_BlockByContentUID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := bm.NewDedupIndex(env.store)

	v := env.createVersion(t, "disk", "a", "b")
	if _, err := env.versions.MarkBlocksInvalid(ctx, "b", "sum-b"); err != nil {
		t.Fatal(err)
	}

	b, err := idx.BlockByContentUID(ctx, "b")
	if err != nil {
		t.Fatalf("BlockByContentUID() error = %v", err)
	}
	if b.VersionUID != v || b.SeqID != 1 || b.Validity != bm.Invalid {
		t.Errorf("BlockByContentUID() = %+v, want invalid block 1 of %s", b, v)
	}

	if _, err := idx.BlockByContentUID(ctx, "zzz"); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("BlockByContentUID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDedupIndex_UnreferencedPayloads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := bm.NewDedupIndex(env.store)

	env.createVersion(t, "kept", "a", "b")
	gone := env.createVersion(t, "gone", "c")
	if _, err := env.versions.Delete(ctx, gone); err != nil {
		t.Fatal(err)
	}

	got, err := idx.UnreferencedPayloads(ctx, []string{"x", "a", "c", "b", "y"})
	if err != nil {
		t.Fatalf("UnreferencedPayloads() error = %v", err)
	}
	if want := []string{"x", "y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("UnreferencedPayloads() = %v, want %v", got, want)
	}

	none, err := idx.UnreferencedPayloads(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("UnreferencedPayloads(nil) = %v, %v", none, err)
	}
}
