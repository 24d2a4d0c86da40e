package vault

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bm-go/internal/bm"
	"bm-go/internal/encryption"
)

func newUnlockedVault(t *testing.T) bm.Vault {
	t.Helper()
	v := NewEncryptedVault(NewMemoryVault(), encryption.NewPlainEncryptor())
	if err := v.Unlock(""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	return v
}

func TestEncryptedVault(t *testing.T) {
	testVaultContract(t, newUnlockedVault)
}

func TestEncryptedVault_StoresCiphertext(t *testing.T) {
	inner := NewMemoryVault()
	v := NewEncryptedVault(inner, encryption.NewPlainEncryptor())
	ctx := context.Background()

	uid, err := v.WritePayload(ctx, strings.NewReader("secret"), 6)
	if err != nil {
		t.Fatalf("WritePayload() error = %v", err)
	}

	var raw bytes.Buffer
	if err := inner.ReadPayload(ctx, uid, &raw); err != nil {
		t.Fatal(err)
	}
	if raw.String() == "secret" {
		t.Error("inner vault holds plaintext")
	}
}

func TestEncryptedVault_ReadLocked(t *testing.T) {
	v := NewEncryptedVault(NewMemoryVault(), encryption.NewPlainEncryptor())
	ctx := context.Background()

	uid, err := v.WritePayload(ctx, strings.NewReader("data"), 4)
	if err != nil {
		t.Fatal(err)
	}
	if v.Unlocked() {
		t.Error("Unlocked() = true before Unlock")
	}
	if err := v.ReadPayload(ctx, uid, &bytes.Buffer{}); !errors.Is(err, ErrLocked) {
		t.Errorf("ReadPayload() before Unlock error = %v, want ErrLocked", err)
	}
	if err := v.Unlock(""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if !v.Unlocked() {
		t.Error("Unlocked() = false after Unlock")
	}
}
