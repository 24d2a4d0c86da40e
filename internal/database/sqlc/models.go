// Maintained by hand in the layout sqlc v1.29.0 emits for sqlc.yaml.
// Edit together with queries.sql and schema.sql.

package sqlc

import (
	"database/sql"
	"time"
)

type Block struct {
	VersionUid string
	ID         int64
	Uid        sql.NullString
	Checksum   sql.NullString
	Size       int64
	Valid      int64
	WrittenAt  time.Time
}

type DeletedBlock struct {
	ID              int64
	Uid             string
	Size            int64
	DeleteCandidate int64
	EnqueuedAt      int64
}

type Stat struct {
	VersionUid        string
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
	DurationSeconds   int64
}

type Version struct {
	Uid       string
	Name      string
	CreatedAt time.Time
	Size      int64
	SizeBytes int64
	Valid     int64
}
