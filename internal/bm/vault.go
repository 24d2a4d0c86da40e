package bm

import (
	"context"
	"io"
)

// Vault is the physical storage backend for block payloads. Payloads are
// addressed by content uid, which the vault allocates on write.
type Vault interface {
	// WritePayload stores size bytes read from r and returns the new content uid.
	WritePayload(ctx context.Context, r io.Reader, size int64) (string, error)

	// ReadPayload writes the payload stored under uid to w.
	// Returns ErrNotFound if there is none.
	ReadPayload(ctx context.Context, uid string, w io.Writer) error

	// DeletePayload removes the payload. Deleting a missing uid is not an error.
	DeletePayload(ctx context.Context, uid string) error

	// ListPayloads returns every stored uid starting with prefix, sorted.
	ListPayloads(ctx context.Context, prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
