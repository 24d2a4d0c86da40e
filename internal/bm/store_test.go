package bm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bm-go/internal/bm"
	"bm-go/internal/testutil"
)

func TestWithTx_CancelledContext(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := bm.WithTx(ctx, store, func(tx bm.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithTx() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("WithTx() ran fn with a cancelled context")
	}
}

func TestWithTx_BeginFailure(t *testing.T) {
	flaky := testutil.NewFlakyStore(testutil.NewTestStore(t))
	flaky.SetFailing(true)

	err := bm.WithTx(context.Background(), flaky, func(tx bm.Tx) error { return nil })
	if !errors.Is(err, bm.ErrStoreUnavailable) || !errors.Is(err, testutil.ErrInjected) {
		t.Errorf("WithTx() error = %v, want injected ErrStoreUnavailable", err)
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := fmt.Errorf("loading: %w", bm.NewStoreError("get version", bm.ErrConflict, cause))

	if !errors.Is(err, bm.ErrConflict) || !errors.Is(err, cause) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if bm.IsNotFound(err) {
		t.Error("IsNotFound() = true for a conflict")
	}

	var se *bm.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("errors.As() found no StoreError in %v", err)
	}
	if se.Op != "get version" {
		t.Errorf("Op = %q, want get version", se.Op)
	}

	if !errors.Is(bm.NewStoreError("op", nil, cause), bm.ErrStoreUnavailable) {
		t.Error("nil kind is not treated as ErrStoreUnavailable")
	}
}

func TestStamp(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	in := time.Date(2024, 5, 1, 15, 4, 5, 999_000_000, loc)
	got := bm.Stamp(in)

	want := time.Date(2024, 5, 1, 12, 4, 5, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("Stamp() = %v, want %v", got, want)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{bm.Valid.String(), "valid"},
		{bm.Invalid.String(), "invalid"},
		{bm.PhaseMaybe.String(), "maybe"},
		{bm.PhaseSure.String(), "sure"},
		{bm.PhaseDeleted.String(), "deleted"},
		{bm.DeletePhase(9).String(), "phase(9)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
