package bm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a Version or Block does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the store detected a concurrent
	// modification. The whole operation may be retried.
	ErrConflict = errors.New("concurrent modification")

	// ErrStoreUnavailable is returned for I/O or transport failures talking
	// to the entity store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrImportFormat is returned for malformed or version-mismatched
	// interchange input.
	ErrImportFormat = errors.New("invalid import format")

	// ErrAlreadyExists is returned when inserting a row whose key is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// StoreError wraps a backend failure with the operation that produced it
// and the taxonomy error it was classified as.
type StoreError struct {
	Op   string // e.g. "get version", "upsert block"
	Kind error  // one of the sentinel errors above
	Err  error  // underlying driver error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewStoreError builds a StoreError. A nil kind is treated as ErrStoreUnavailable.
func NewStoreError(op string, kind, err error) error {
	if kind == nil {
		kind = ErrStoreUnavailable
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// IsNotFound reports whether err is a NotFound miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
