package bm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GC defaults.
const (
	DefaultGracePeriod   = time.Hour
	DefaultPageSize      = 250
	DefaultProgressEvery = 1000
)

// CollectorConfig tunes the delete-candidate sweep.
type CollectorConfig struct {
	// GracePeriod is how old a candidate must be before a sweep looks at it.
	GracePeriod time.Duration
	// PageSize bounds the candidates handled per transaction.
	PageSize int
	// ProgressEvery logs progress after this many candidates.
	ProgressEvery int
}

// DefaultCollectorConfig returns the default sweep settings.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		GracePeriod:   DefaultGracePeriod,
		PageSize:      DefaultPageSize,
		ProgressEvery: DefaultProgressEvery,
	}
}

// ReclaimFunc physically removes the payloads of confirmed content uids.
// It must be idempotent: after a failure the same uids are offered again.
type ReclaimFunc func(ctx context.Context, uids []string) error

// ReclaimWith returns a ReclaimFunc deleting payloads from v.
func ReclaimWith(v Vault) ReclaimFunc {
	return func(ctx context.Context, uids []string) error {
		for _, uid := range uids {
			if err := v.DeletePayload(ctx, uid); err != nil {
				return fmt.Errorf("deleting payload %s: %w", uid, err)
			}
		}
		return nil
	}
}

// SweepResult tallies one sweep. Counts are per distinct content uid except
// Candidates, which counts rows.
type SweepResult struct {
	Pages          int
	Candidates     int
	FalsePositives int
	Deletions      int
	Duration       time.Duration
}

// SweepObserver receives sweep progress. Either method may be left as a no-op.
type SweepObserver interface {
	PageSwept(falsePositives, deletions int)
	SweepFinished(res SweepResult, err error)
}

// Collector runs the two-phase delete-candidate sweep.
type Collector struct {
	store    Store
	clock    Clock
	logger   Logger
	config   CollectorConfig
	observer SweepObserver
}

// NewCollector creates a Collector. Zero config fields take their defaults.
func NewCollector(store Store, clock Clock, logger Logger, config CollectorConfig) *Collector {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = DefaultProgressEvery
	}
	return &Collector{store: store, clock: clock, logger: logger, config: config}
}

// SetObserver registers o. Nil disables notifications.
func (c *Collector) SetObserver(o SweepObserver) {
	c.observer = o
}

// Sweep processes delete candidates older than the grace period, one page
// per transaction, until a page comes back empty.
//
// Each candidate uid still referenced by a block is a false positive and its
// rows are dropped. Every other uid is marked PhaseSure, handed to reclaim,
// and its rows are dropped only after reclaim returns nil. A failed reclaim
// ends the sweep with the page's rows left in PhaseSure for the next run.
//
// Cancellation is checked between pages only.
func (c *Collector) Sweep(ctx context.Context, reclaim ReclaimFunc) (res SweepResult, err error) {
	start := time.Now()
	// Pages run to completion even if ctx is cancelled mid-page.
	work := context.WithoutCancel(ctx)
	before := c.clock.Now().Add(-c.config.GracePeriod)
	nextProgress := c.config.ProgressEvery

	defer func() {
		res.Duration = time.Since(start)
		if err != nil {
			c.logger.Error("sweep aborted", "pages", res.Pages, "false_positives", res.FalsePositives,
				"deletions", res.Deletions, "error", err)
		} else {
			c.logger.Info("sweep finished", "pages", res.Pages, "candidates", res.Candidates,
				"false_positives", res.FalsePositives, "deletions", res.Deletions)
		}
		if c.observer != nil {
			c.observer.SweepFinished(res, err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rows, confirmed, falsePositives, err := c.confirmPage(work, before)
		if err != nil {
			return res, fmt.Errorf("sweeping page %d: %w", res.Pages+1, err)
		}
		if rows == 0 {
			return res, nil
		}

		if len(confirmed) > 0 {
			if err := reclaim(work, confirmed); err != nil {
				return res, fmt.Errorf("reclaiming %d payloads: %w", len(confirmed), err)
			}
			if err := c.dropConfirmed(work, confirmed); err != nil {
				return res, fmt.Errorf("dropping reclaimed candidates: %w", err)
			}
		}

		res.Pages++
		res.Candidates += rows
		res.FalsePositives += falsePositives
		res.Deletions += len(confirmed)
		if c.observer != nil {
			c.observer.PageSwept(falsePositives, len(confirmed))
		}
		if res.Candidates >= nextProgress {
			c.logger.Info("sweep progress", "candidates", res.Candidates,
				"false_positives", res.FalsePositives, "deletions", res.Deletions)
			nextProgress += c.config.ProgressEvery
		}
	}
}

// confirmPage reads one page of candidates and decides each distinct uid in
// a single transaction. It returns the number of rows read.
func (c *Collector) confirmPage(ctx context.Context, before time.Time) (rows int, confirmed []string, falsePositives int, err error) {
	err = WithTx(ctx, c.store, func(tx Tx) error {
		candidates, err := tx.ListDeleteCandidates(ctx, before, c.config.PageSize)
		if err != nil {
			return err
		}
		rows = len(candidates)

		seen := make(map[string]struct{}, len(candidates))
		for _, cand := range candidates {
			if _, dup := seen[cand.ContentUID]; dup {
				continue
			}
			seen[cand.ContentUID] = struct{}{}

			_, err := tx.FindBlockByUID(ctx, cand.ContentUID)
			switch {
			case err == nil:
				if _, err := tx.DeleteDeletedBlocks(ctx, cand.ContentUID); err != nil {
					return err
				}
				falsePositives++
			case errors.Is(err, ErrNotFound):
				if err := tx.SetDeletePhase(ctx, cand.ContentUID, PhaseSure); err != nil {
					return err
				}
				confirmed = append(confirmed, cand.ContentUID)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, 0, err
	}
	return rows, confirmed, falsePositives, nil
}

func (c *Collector) dropConfirmed(ctx context.Context, uids []string) error {
	return WithTx(ctx, c.store, func(tx Tx) error {
		for _, uid := range uids {
			if _, err := tx.DeleteDeletedBlocks(ctx, uid); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pending returns the number of queued candidate rows per phase.
func (c *Collector) Pending(ctx context.Context) (map[DeletePhase]int64, error) {
	var counts map[DeletePhase]int64
	err := WithTx(ctx, c.store, func(tx Tx) error {
		var err error
		counts, err = tx.CountDeletedBlocks(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("counting delete candidates: %w", err)
	}
	return counts, nil
}
