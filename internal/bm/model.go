package bm

import (
	"fmt"
	"time"
)

// Validity marks whether a Version or Block is believed to be intact.
type Validity int

const (
	Invalid Validity = 0
	Valid   Validity = 1
)

func (v Validity) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalid"
}

// DeletePhase is the reclamation state of a delete candidate.
type DeletePhase int

const (
	// PhaseMaybe is set when the owning version is deleted.
	PhaseMaybe DeletePhase = 0
	// PhaseSure is set once a sweep has found no block referencing the uid.
	PhaseSure DeletePhase = 1
	// PhaseDeleted marks payload that has been physically removed.
	PhaseDeleted DeletePhase = 2
)

func (p DeletePhase) String() string {
	switch p {
	case PhaseMaybe:
		return "maybe"
	case PhaseSure:
		return "sure"
	case PhaseDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Version is one point-in-time backup.
type Version struct {
	UID       string
	Name      string
	CreatedAt time.Time
	Size      int64 // logical size in blocks
	SizeBytes int64
	Validity  Validity
}

// Block records the placement of one chunk within a Version.
// An empty ContentUID means the block is sparse and has no payload.
type Block struct {
	VersionUID string
	SeqID      int64
	ContentUID string
	Checksum   string
	Size       int64
	Validity   Validity
	WrittenAt  time.Time
}

// MaxContentUIDLen bounds the length of a content uid.
const MaxContentUIDLen = 128

// MaxBlockSize bounds the size recorded for a single block.
const MaxBlockSize = 1 << 30

// IsValidContentUID reports whether uid is a non-empty run of ASCII letters
// and digits no longer than MaxContentUIDLen. Vaults use uids as object keys
// and file names.
func IsValidContentUID(uid string) bool {
	if uid == "" || len(uid) > MaxContentUIDLen {
		return false
	}
	for i := 0; i < len(uid); i++ {
		c := uid[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return false
		}
	}
	return true
}

// IsSparse reports whether the block has no payload.
func (b *Block) IsSparse() bool {
	return b.ContentUID == ""
}

// DeletedBlock is a reclamation candidate left behind by a deleted Version.
type DeletedBlock struct {
	ID         int64
	ContentUID string
	Size       int64
	Phase      DeletePhase
	EnqueuedAt time.Time
}

// Stats is the write-once record of one backup run.
type Stats struct {
	VersionUID        string
	VersionName       string
	CreatedAt         time.Time
	VersionSizeBytes  int64
	VersionSizeBlocks int64
	BytesRead         int64
	BlocksRead        int64
	BytesWritten      int64
	BlocksWritten     int64
	BytesDedup        int64
	BlocksDedup       int64
	BytesSparse       int64
	BlocksSparse      int64
	Duration          time.Duration
}

// Stamp returns t in UTC truncated to whole seconds, the resolution every
// store persists.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
