package encryption

import (
	"bytes"
	"fmt"
	"io"

	"bm-go/internal/bm"
)

// plainHeader marks payloads written by PlainEncryptor.
var plainHeader = []byte("BMENC\x00\x00\x00")

// PlainEncryptor frames payloads with a fixed header and no cryptography.
// Framed output differs from the input, so tests can tell the two apart.
type PlainEncryptor struct {
	configured bool
}

var _ bm.Encryptor = (*PlainEncryptor)(nil)

func NewPlainEncryptor() *PlainEncryptor {
	return &PlainEncryptor{}
}

func (e *PlainEncryptor) Setup(string) error {
	if e.configured {
		return ErrKeysExist
	}
	e.configured = true
	return nil
}

func (e *PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(plainHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}
	return nil
}

func (e *PlainEncryptor) Unlock(string) (bm.DecryptionContext, error) {
	return plainDecryptor{}, nil
}

// IsConfigured is always true; there are no keys to create.
func (e *PlainEncryptor) IsConfigured() bool {
	return true
}

type plainDecryptor struct{}

func (plainDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(plainHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, plainHeader) {
		return fmt.Errorf("payload is not framed")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}
	return nil
}
