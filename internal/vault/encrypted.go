package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"bm-go/internal/bm"
)

// ErrLocked is returned by EncryptedVault.ReadPayload before Unlock.
var ErrLocked = errors.New("vault is locked")

// EncryptedVault encrypts payloads on the way into an inner vault. Writes
// need only the public key; reads need Unlock first.
type EncryptedVault struct {
	inner bm.Vault
	enc   bm.Encryptor

	mu sync.RWMutex
	dc bm.DecryptionContext
}

var _ bm.Vault = (*EncryptedVault)(nil)

func NewEncryptedVault(inner bm.Vault, enc bm.Encryptor) *EncryptedVault {
	return &EncryptedVault{inner: inner, enc: enc}
}

// Unlock opens the private key for the rest of the session.
func (v *EncryptedVault) Unlock(passphrase string) error {
	dc, err := v.enc.Unlock(passphrase)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.dc = dc
	v.mu.Unlock()
	return nil
}

// Unlocked reports whether Unlock has succeeded.
func (v *EncryptedVault) Unlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dc != nil
}

func (v *EncryptedVault) WritePayload(ctx context.Context, r io.Reader, size int64) (string, error) {
	data, err := readExactly(r, size)
	if err != nil {
		return "", err
	}
	var sealed bytes.Buffer
	if err := v.enc.Encrypt(bytes.NewReader(data), &sealed); err != nil {
		return "", fmt.Errorf("encrypting payload: %w", err)
	}
	return v.inner.WritePayload(ctx, &sealed, int64(sealed.Len()))
}

func (v *EncryptedVault) ReadPayload(ctx context.Context, uid string, w io.Writer) error {
	v.mu.RLock()
	dc := v.dc
	v.mu.RUnlock()
	if dc == nil {
		return ErrLocked
	}

	var sealed bytes.Buffer
	if err := v.inner.ReadPayload(ctx, uid, &sealed); err != nil {
		return err
	}
	if err := dc.Decrypt(&sealed, w); err != nil {
		return fmt.Errorf("decrypting payload %s: %w", uid, err)
	}
	return nil
}

func (v *EncryptedVault) DeletePayload(ctx context.Context, uid string) error {
	return v.inner.DeletePayload(ctx, uid)
}

func (v *EncryptedVault) ListPayloads(ctx context.Context, prefix string) ([]string, error) {
	return v.inner.ListPayloads(ctx, prefix)
}

// ValidateSetup also requires the encryption keys to exist.
func (v *EncryptedVault) ValidateSetup(ctx context.Context) error {
	if !v.enc.IsConfigured() {
		return errors.New("encryption keys are not set up")
	}
	return v.inner.ValidateSetup(ctx)
}
