package bm

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Stores persist whatever it returns after
// passing it through Stamp.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator allocates Version uids.
type IDGenerator interface {
	New() string
}

// UUIDGenerator returns v7 UUIDs, which sort by creation time.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.Must(uuid.NewV7()).String() }

// NewContentUID returns a random 32 character hex identifier for a payload.
func NewContentUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
