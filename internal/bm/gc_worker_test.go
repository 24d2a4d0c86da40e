package bm_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bm-go/internal/bm"
)

func TestSweepWorker_SweepsImmediatelyAndPeriodically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uid := env.writePayload(t, "stale")
	v := env.createVersion(t, "disk", uid)
	if _, err := env.versions.Delete(ctx, v); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(2 * time.Hour)

	reclaimed := make(chan []string, 1)
	reclaim := func(ctx context.Context, uids []string) error {
		reclaimed <- uids
		return nil
	}

	w := bm.NewSweepWorker(newCollector(env, bm.CollectorConfig{}), reclaim, time.Hour, env.logger)
	w.Start()
	defer w.Stop()

	select {
	case uids := <-reclaimed:
		if len(uids) != 1 || uids[0] != uid {
			t.Errorf("reclaimed %v, want [%s]", uids, uid)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not sweep on start")
	}
}

func TestSweepWorker_RetriesAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v := env.createVersion(t, "disk", env.writePayload(t, "x"))
	if _, err := env.versions.Delete(ctx, v); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(2 * time.Hour)

	var (
		calls atomic.Int32
		once  sync.Once
	)
	done := make(chan struct{})
	reclaim := func(ctx context.Context, uids []string) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		once.Do(func() { close(done) })
		return nil
	}

	w := bm.NewSweepWorker(newCollector(env, bm.CollectorConfig{}), reclaim, 20*time.Millisecond, env.logger)
	w.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not retry after a failed sweep")
	}
	w.Stop()

	if !env.logger.Contains("sweep failed") {
		t.Error("failed sweep was not logged")
	}
}

func TestSweepWorker_StartStopIdempotent(t *testing.T) {
	env := newTestEnv(t)
	w := bm.NewSweepWorker(newCollector(env, bm.CollectorConfig{}), bm.ReclaimWith(env.vault), 0, env.logger)

	w.Stop()
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}
