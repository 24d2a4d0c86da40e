package vault

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bm-go/internal/bm"
)

// testVaultContract exercises the behavior every bm.Vault must share.
func testVaultContract(t *testing.T, newVault func(t *testing.T) bm.Vault) {
	t.Run("WriteAndRead", func(t *testing.T) {
		v := newVault(t)
		ctx := context.Background()

		uid, err := v.WritePayload(ctx, strings.NewReader("hello world"), 11)
		if err != nil {
			t.Fatalf("WritePayload() error = %v", err)
		}
		if uid == "" {
			t.Fatal("WritePayload() returned empty uid")
		}

		var buf bytes.Buffer
		if err := v.ReadPayload(ctx, uid, &buf); err != nil {
			t.Fatalf("ReadPayload() error = %v", err)
		}
		if buf.String() != "hello world" {
			t.Errorf("ReadPayload() = %q, want %q", buf.String(), "hello world")
		}
	})

	t.Run("DistinctUIDs", func(t *testing.T) {
		v := newVault(t)
		ctx := context.Background()
		a, err := v.WritePayload(ctx, strings.NewReader("same"), 4)
		if err != nil {
			t.Fatal(err)
		}
		b, err := v.WritePayload(ctx, strings.NewReader("same"), 4)
		if err != nil {
			t.Fatal(err)
		}
		if a == b {
			t.Errorf("two writes returned the same uid %s", a)
		}
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		v := newVault(t)
		ctx := context.Background()
		if _, err := v.WritePayload(ctx, strings.NewReader("short"), 100); err == nil {
			t.Error("WritePayload() with wrong size succeeded, want error")
		}
		uids, err := v.ListPayloads(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(uids) != 0 {
			t.Errorf("failed write left payloads behind: %v", uids)
		}
	})

	t.Run("ReadMissing", func(t *testing.T) {
		v := newVault(t)
		err := v.ReadPayload(context.Background(), "0000missing", &bytes.Buffer{})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("ReadPayload(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		v := newVault(t)
		ctx := context.Background()
		uid, err := v.WritePayload(ctx, strings.NewReader("x"), 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := v.DeletePayload(ctx, uid); err != nil {
			t.Fatalf("DeletePayload() error = %v", err)
		}
		if err := v.DeletePayload(ctx, uid); err != nil {
			t.Errorf("second DeletePayload() error = %v, want nil", err)
		}
		if err := v.ReadPayload(ctx, uid, &bytes.Buffer{}); !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("ReadPayload(deleted) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		v := newVault(t)
		ctx := context.Background()
		var written []string
		for range 5 {
			uid, err := v.WritePayload(ctx, strings.NewReader("p"), 1)
			if err != nil {
				t.Fatal(err)
			}
			written = append(written, uid)
		}

		all, err := v.ListPayloads(ctx, "")
		if err != nil {
			t.Fatalf("ListPayloads() error = %v", err)
		}
		if len(all) != len(written) {
			t.Fatalf("ListPayloads() returned %d uids, want %d", len(all), len(written))
		}
		for i := 1; i < len(all); i++ {
			if all[i-1] >= all[i] {
				t.Errorf("ListPayloads() not sorted: %v", all)
			}
		}

		prefix := written[0][:3]
		some, err := v.ListPayloads(ctx, prefix)
		if err != nil {
			t.Fatalf("ListPayloads(%s) error = %v", prefix, err)
		}
		if len(some) == 0 {
			t.Errorf("ListPayloads(%s) missed %s", prefix, written[0])
		}
		for _, uid := range some {
			if !strings.HasPrefix(uid, prefix) {
				t.Errorf("ListPayloads(%s) returned %s", prefix, uid)
			}
		}
	})

	t.Run("ValidateSetup", func(t *testing.T) {
		v := newVault(t)
		if err := v.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryVault(t *testing.T) {
	testVaultContract(t, func(t *testing.T) bm.Vault {
		return NewMemoryVault()
	})
}

func TestFileSystemVault(t *testing.T) {
	testVaultContract(t, func(t *testing.T) bm.Vault {
		v, err := NewFileSystemVault(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		return v
	})
}
