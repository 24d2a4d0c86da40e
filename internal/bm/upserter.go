package bm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultFlushEvery is the number of SetBlock calls between automatic flushes.
const DefaultFlushEvery = 1000

// FlushObserver is notified after each successful flush.
type FlushObserver interface {
	BlocksFlushed(count int, took time.Duration)
}

type blockKey struct {
	versionUID string
	seqID      int64
}

// BlockUpserter records block placements for one backup job. Writes are
// buffered and committed in one transaction every flushEvery calls, or
// immediately when the caller asks for it. A BlockUpserter is safe for
// concurrent use but is meant to be owned by a single job.
type BlockUpserter struct {
	store      Store
	clock      Clock
	logger     Logger
	flushEvery uint64
	observer   FlushObserver

	mu      sync.Mutex
	counter uint64
	pending []*Block
	index   map[blockKey]int
	// checksum -> content uid of valid blocks not yet flushed
	pendingUIDs map[string]string
}

// NewBlockUpserter creates a BlockUpserter. A flushEvery below 1 means
// DefaultFlushEvery.
func NewBlockUpserter(store Store, clock Clock, logger Logger, flushEvery int) *BlockUpserter {
	if flushEvery < 1 {
		flushEvery = DefaultFlushEvery
	}
	return &BlockUpserter{
		store:       store,
		clock:       clock,
		logger:      logger,
		flushEvery:  uint64(flushEvery),
		index:       make(map[blockKey]int),
		pendingUIDs: make(map[string]string),
	}
}

// SetObserver registers o to receive flush notifications. Nil disables them.
func (u *BlockUpserter) SetObserver(o FlushObserver) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.observer = o
}

// SetBlock records the block at (b.VersionUID, b.SeqID), replacing any
// earlier placement at that position. WrittenAt is set from the clock. With
// commit set, all buffered blocks are flushed before returning.
func (u *BlockUpserter) SetBlock(ctx context.Context, b Block, commit bool) error {
	if b.VersionUID == "" {
		return fmt.Errorf("setting block: missing version uid")
	}
	if b.SeqID < 0 {
		return fmt.Errorf("setting block: negative sequence id %d", b.SeqID)
	}
	b.WrittenAt = Stamp(u.clock.Now())

	u.mu.Lock()
	defer u.mu.Unlock()

	key := blockKey{versionUID: b.VersionUID, seqID: b.SeqID}
	if i, ok := u.index[key]; ok {
		u.pending[i] = &b
	} else {
		u.index[key] = len(u.pending)
		u.pending = append(u.pending, &b)
	}
	if b.Validity == Valid && !b.IsSparse() && b.Checksum != "" {
		u.pendingUIDs[b.Checksum] = b.ContentUID
	}

	u.counter++
	if commit || u.counter%u.flushEvery == 0 {
		return u.flushLocked(ctx)
	}
	return nil
}

// PendingUID returns the content uid of a buffered valid block with this
// checksum. Blocks already flushed are found through the DedupIndex instead.
func (u *BlockUpserter) PendingUID(checksum string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	uid, ok := u.pendingUIDs[checksum]
	return uid, ok
}

// Pending returns the number of buffered blocks.
func (u *BlockUpserter) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

// Flush commits all buffered blocks. On failure the buffer is kept so the
// flush can be retried.
func (u *BlockUpserter) Flush(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.flushLocked(ctx)
}

// Close flushes any buffered blocks.
func (u *BlockUpserter) Close(ctx context.Context) error {
	return u.Flush(ctx)
}

func (u *BlockUpserter) flushLocked(ctx context.Context) error {
	if len(u.pending) == 0 {
		return nil
	}

	start := time.Now()
	err := WithTx(ctx, u.store, func(tx Tx) error {
		for _, b := range u.pending {
			if err := tx.UpsertBlock(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flushing %d blocks: %w", len(u.pending), err)
	}
	took := time.Since(start)

	n := len(u.pending)
	u.pending = u.pending[:0]
	clear(u.index)
	clear(u.pendingUIDs)

	u.logger.Debug("blocks flushed", "count", n, "took", took)
	if u.observer != nil {
		u.observer.BlocksFlushed(n, took)
	}
	return nil
}
