package bm

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is the time between sweeps run by a SweepWorker.
const DefaultSweepInterval = 10 * time.Minute

// SweepWorker runs Collector.Sweep periodically in the background.
type SweepWorker struct {
	collector *Collector
	reclaim   ReclaimFunc
	interval  time.Duration
	logger    Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewSweepWorker creates a worker. An interval of zero means DefaultSweepInterval.
func NewSweepWorker(collector *Collector, reclaim ReclaimFunc, interval time.Duration, logger Logger) *SweepWorker {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepWorker{
		collector: collector,
		reclaim:   reclaim,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins sweeping. The first sweep runs immediately.
func (w *SweepWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	go w.run(ctx)
}

// Stop cancels the worker and waits for it to exit. A sweep in progress
// finishes its current page first.
func (w *SweepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	done := w.doneCh
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	// Errors are logged by the collector; the next tick retries.
	if _, err := w.collector.Sweep(ctx, w.reclaim); err != nil && ctx.Err() == nil {
		w.logger.Warn("sweep failed, retrying next interval", "interval", w.interval, "error", err)
	}
}
