package bm

import (
	"context"
	"fmt"
	"time"
)

// Store is the durable entity store for Versions, Blocks, DeletedBlocks and
// Stats. Every logical operation runs inside one Tx obtained from Begin;
// WithTx is the usual way to get one.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a unit of work against the Store. Readers never observe a partially
// applied Tx. Implementations classify driver errors into the taxonomy in
// errors.go and wrap them in StoreError.
type Tx interface {
	Commit() error
	// Rollback discards the Tx. It is a no-op after Commit.
	Rollback() error

	InsertVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, uid string) (*Version, error)
	// ListVersions orders by name, creation time, then uid.
	ListVersions(ctx context.Context) ([]*Version, error)
	SetVersionValidity(ctx context.Context, uid string, validity Validity) error
	DeleteVersion(ctx context.Context, uid string) error

	// UpsertBlock inserts the block or replaces the row at
	// (VersionUID, SeqID) in place.
	UpsertBlock(ctx context.Context, b *Block) error
	GetBlock(ctx context.Context, versionUID string, seqID int64) (*Block, error)
	// ListBlocks orders by sequence id.
	ListBlocks(ctx context.Context, versionUID string) ([]*Block, error)
	// DeleteBlocks removes every block of the version, sparse ones included,
	// and returns how many rows went.
	DeleteBlocks(ctx context.Context, versionUID string) (int64, error)
	// EnqueueVersionBlocks adds a PhaseMaybe DeletedBlock for every non-sparse
	// block of the version and returns how many were added.
	EnqueueVersionBlocks(ctx context.Context, versionUID string, at time.Time) (int64, error)

	FindValidBlockByChecksum(ctx context.Context, checksum string) (*Block, error)
	// FindBlockByUID returns any block referencing the content uid,
	// regardless of validity.
	FindBlockByUID(ctx context.Context, contentUID string) (*Block, error)
	// ListVersionsWithValidBlock returns the distinct, sorted uids of versions
	// owning a valid block with this content uid and checksum.
	ListVersionsWithValidBlock(ctx context.Context, contentUID, checksum string) ([]string, error)
	InvalidateBlocks(ctx context.Context, contentUID, checksum string) (int64, error)
	// ListContentUIDs returns distinct non-sparse content uids, sorted.
	ListContentUIDs(ctx context.Context, prefix string) ([]string, error)

	InsertDeletedBlock(ctx context.Context, d *DeletedBlock) error
	// ListDeleteCandidates returns at most limit rows enqueued strictly before
	// the given time, oldest row id first.
	ListDeleteCandidates(ctx context.Context, before time.Time, limit int) ([]*DeletedBlock, error)
	SetDeletePhase(ctx context.Context, contentUID string, phase DeletePhase) error
	// DeleteDeletedBlocks removes every candidate row for the content uid.
	DeleteDeletedBlocks(ctx context.Context, contentUID string) (int64, error)
	CountDeletedBlocks(ctx context.Context) (map[DeletePhase]int64, error)

	InsertStats(ctx context.Context, s *Stats) error
	// ListStats returns the newest limit rows, oldest first. An empty
	// versionUID selects every version; a negative limit selects every row.
	ListStats(ctx context.Context, versionUID string, limit int) ([]*Stats, error)
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back on error or panic.
func WithTx(ctx context.Context, s Store, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
