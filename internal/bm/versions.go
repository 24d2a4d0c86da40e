package bm

import (
	"context"
	"fmt"
)

// VersionManager creates, invalidates, lists and deletes Versions.
type VersionManager struct {
	store  Store
	clock  Clock
	ids    IDGenerator
	logger Logger
}

// NewVersionManager creates a VersionManager.
func NewVersionManager(store Store, clock Clock, ids IDGenerator, logger Logger) *VersionManager {
	return &VersionManager{store: store, clock: clock, ids: ids, logger: logger}
}

// CreateVersion inserts a new valid Version and returns its uid.
func (m *VersionManager) CreateVersion(ctx context.Context, name string, sizeBlocks, sizeBytes int64) (string, error) {
	v := &Version{
		UID:       m.ids.New(),
		Name:      name,
		CreatedAt: Stamp(m.clock.Now()),
		Size:      sizeBlocks,
		SizeBytes: sizeBytes,
		Validity:  Valid,
	}
	err := WithTx(ctx, m.store, func(tx Tx) error {
		return tx.InsertVersion(ctx, v)
	})
	if err != nil {
		return "", fmt.Errorf("creating version %q: %w", name, err)
	}
	m.logger.Info("version created", "uid", v.UID, "name", name, "blocks", sizeBlocks)
	return v.UID, nil
}

// MarkInvalid flags the version as invalid.
func (m *VersionManager) MarkInvalid(ctx context.Context, uid string) error {
	return m.setValidity(ctx, uid, Invalid)
}

// MarkValid flags the version as valid again.
func (m *VersionManager) MarkValid(ctx context.Context, uid string) error {
	return m.setValidity(ctx, uid, Valid)
}

func (m *VersionManager) setValidity(ctx context.Context, uid string, validity Validity) error {
	err := WithTx(ctx, m.store, func(tx Tx) error {
		return tx.SetVersionValidity(ctx, uid, validity)
	})
	if err != nil {
		return fmt.Errorf("marking version %s %s: %w", uid, validity, err)
	}
	m.logger.Info("version validity changed", "uid", uid, "validity", validity.String())
	return nil
}

// Get returns the version or ErrNotFound.
func (m *VersionManager) Get(ctx context.Context, uid string) (*Version, error) {
	var v *Version
	err := WithTx(ctx, m.store, func(tx Tx) error {
		var err error
		v, err = tx.GetVersion(ctx, uid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting version %s: %w", uid, err)
	}
	return v, nil
}

// List returns all versions ordered by name then creation time.
func (m *VersionManager) List(ctx context.Context) ([]*Version, error) {
	var versions []*Version
	err := WithTx(ctx, m.store, func(tx Tx) error {
		var err error
		versions, err = tx.ListVersions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return versions, nil
}

// ListBlocks returns the blocks of a version in sequence order. It returns
// ErrNotFound if the version does not exist.
func (m *VersionManager) ListBlocks(ctx context.Context, uid string) ([]*Block, error) {
	var blocks []*Block
	err := WithTx(ctx, m.store, func(tx Tx) error {
		if _, err := tx.GetVersion(ctx, uid); err != nil {
			return err
		}
		var err error
		blocks, err = tx.ListBlocks(ctx, uid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing blocks of %s: %w", uid, err)
	}
	return blocks, nil
}

// Delete removes the version and all its blocks, queueing each non-sparse
// block's content uid as a delete candidate. It returns the number of block
// rows removed, sparse blocks included.
func (m *VersionManager) Delete(ctx context.Context, uid string) (int64, error) {
	var removed, enqueued int64
	err := WithTx(ctx, m.store, func(tx Tx) error {
		if _, err := tx.GetVersion(ctx, uid); err != nil {
			return err
		}
		var err error
		enqueued, err = tx.EnqueueVersionBlocks(ctx, uid, Stamp(m.clock.Now()))
		if err != nil {
			return err
		}
		removed, err = tx.DeleteBlocks(ctx, uid)
		if err != nil {
			return err
		}
		return tx.DeleteVersion(ctx, uid)
	})
	if err != nil {
		return 0, fmt.Errorf("deleting version %s: %w", uid, err)
	}
	m.logger.Info("version deleted", "uid", uid, "blocks", removed, "candidates", enqueued)
	return removed, nil
}

// MarkBlocksInvalid invalidates every valid block holding this content uid
// and checksum, then invalidates each owning version. It returns the uids of
// the versions it changed; a repeat call returns none.
func (m *VersionManager) MarkBlocksInvalid(ctx context.Context, contentUID, checksum string) ([]string, error) {
	var affected []string
	err := WithTx(ctx, m.store, func(tx Tx) error {
		var err error
		affected, err = tx.ListVersionsWithValidBlock(ctx, contentUID, checksum)
		if err != nil {
			return err
		}
		if len(affected) == 0 {
			return nil
		}
		if _, err := tx.InvalidateBlocks(ctx, contentUID, checksum); err != nil {
			return err
		}
		for _, uid := range affected {
			if err := tx.SetVersionValidity(ctx, uid, Invalid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalidating blocks with uid %s: %w", contentUID, err)
	}
	if len(affected) > 0 {
		m.logger.Warn("blocks marked invalid", "content_uid", contentUID, "checksum", checksum, "versions", affected)
	}
	return affected, nil
}

// RecordStats stores the run record of a backup. Stats are write-once per
// version; a second record fails with ErrAlreadyExists.
func (m *VersionManager) RecordStats(ctx context.Context, s *Stats) error {
	rec := *s
	rec.CreatedAt = Stamp(rec.CreatedAt)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = Stamp(m.clock.Now())
	}
	err := WithTx(ctx, m.store, func(tx Tx) error {
		return tx.InsertStats(ctx, &rec)
	})
	if err != nil {
		return fmt.Errorf("recording stats for %s: %w", s.VersionUID, err)
	}
	return nil
}

// ListStats returns the newest limit stats records, oldest first. An empty
// versionUID selects all versions and a negative limit returns everything.
func (m *VersionManager) ListStats(ctx context.Context, versionUID string, limit int) ([]*Stats, error) {
	if limit == 0 {
		return nil, nil
	}
	var stats []*Stats
	err := WithTx(ctx, m.store, func(tx Tx) error {
		var err error
		stats, err = tx.ListStats(ctx, versionUID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing stats: %w", err)
	}
	return stats, nil
}
