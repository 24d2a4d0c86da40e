package bm_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"bm-go/internal/bm"
)

type sweepRecorder struct {
	mu       sync.Mutex
	pages    int
	finished []bm.SweepResult
	errs     []error
}

func (r *sweepRecorder) PageSwept(int, int) {
	r.mu.Lock()
	r.pages++
	r.mu.Unlock()
}

func (r *sweepRecorder) SweepFinished(res bm.SweepResult, err error) {
	r.mu.Lock()
	r.finished = append(r.finished, res)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// reclaimLog records every uid offered for reclamation before passing it on.
type reclaimLog struct {
	mu      sync.Mutex
	offered []string
	next    bm.ReclaimFunc
	fail    error
}

func (l *reclaimLog) reclaim(ctx context.Context, uids []string) error {
	l.mu.Lock()
	l.offered = append(l.offered, uids...)
	fail := l.fail
	l.mu.Unlock()
	if fail != nil {
		return fail
	}
	return l.next(ctx, uids)
}

func newCollector(env *testEnv, cfg bm.CollectorConfig) *bm.Collector {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Hour
	}
	return bm.NewCollector(env.store, env.clock, env.logger, cfg)
}

func payloadExists(t *testing.T, env *testEnv, uid string) bool {
	t.Helper()
	err := env.vault.ReadPayload(context.Background(), uid, &bytes.Buffer{})
	if err != nil && !errors.Is(err, bm.ErrNotFound) {
		t.Fatalf("ReadPayload() error = %v", err)
	}
	return err == nil
}

func TestCollector_SweepReclaimsUnreferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	shared := env.writePayload(t, "shared")
	only := env.writePayload(t, "only-in-v1")

	v1 := env.createVersion(t, "disk", shared, only, "")
	env.createVersion(t, "disk", shared)

	if _, err := env.versions.Delete(ctx, v1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	env.clock.Advance(time.Hour + time.Second)

	rec := &sweepRecorder{}
	log := &reclaimLog{next: bm.ReclaimWith(env.vault)}
	c := newCollector(env, bm.CollectorConfig{})
	c.SetObserver(rec)

	res, err := c.Sweep(ctx, log.reclaim)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Candidates != 2 || res.FalsePositives != 1 || res.Deletions != 1 {
		t.Errorf("Sweep() = %+v, want 2 candidates, 1 false positive, 1 deletion", res)
	}
	if !slices.Equal(log.offered, []string{only}) {
		t.Errorf("reclaim offered %v, want [%s]", log.offered, only)
	}
	if !payloadExists(t, env, shared) {
		t.Error("payload still referenced by v2 was deleted")
	}
	if payloadExists(t, env, only) {
		t.Error("unreferenced payload survived the sweep")
	}

	pending, err := c.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for phase, n := range pending {
		if n != 0 {
			t.Errorf("%d candidates left in phase %v", n, phase)
		}
	}
	if rec.pages != 1 || len(rec.finished) != 1 || rec.errs[0] != nil {
		t.Errorf("observer saw pages=%d finished=%v errs=%v", rec.pages, rec.finished, rec.errs)
	}
}

func TestCollector_GracePeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uid := env.writePayload(t, "young")
	v := env.createVersion(t, "disk", uid)
	if _, err := env.versions.Delete(ctx, v); err != nil {
		t.Fatal(err)
	}

	c := newCollector(env, bm.CollectorConfig{})
	env.clock.Advance(30 * time.Minute)
	res, err := c.Sweep(ctx, bm.ReclaimWith(env.vault))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Candidates != 0 {
		t.Errorf("Sweep() inside grace period looked at %d candidates", res.Candidates)
	}
	if !payloadExists(t, env, uid) {
		t.Error("payload deleted inside the grace period")
	}

	env.clock.Advance(31 * time.Minute)
	res, err = c.Sweep(ctx, bm.ReclaimWith(env.vault))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Deletions != 1 || payloadExists(t, env, uid) {
		t.Errorf("Sweep() after grace period = %+v, payload exists = %v", res, payloadExists(t, env, uid))
	}
}

func TestCollector_ReReferencedIsFalsePositive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uid := env.writePayload(t, "reused")
	v1 := env.createVersion(t, "disk", uid)
	if _, err := env.versions.Delete(ctx, v1); err != nil {
		t.Fatal(err)
	}
	// A later backup dedups against the same payload before the sweep.
	env.createVersion(t, "disk", uid)
	env.clock.Advance(2 * time.Hour)

	log := &reclaimLog{next: bm.ReclaimWith(env.vault)}
	res, err := newCollector(env, bm.CollectorConfig{}).Sweep(ctx, log.reclaim)
	if err != nil {
		t.Fatal(err)
	}
	if res.FalsePositives != 1 || res.Deletions != 0 || len(log.offered) != 0 {
		t.Errorf("Sweep() = %+v, offered %v", res, log.offered)
	}
	if !payloadExists(t, env, uid) {
		t.Error("re-referenced payload was deleted")
	}
}

func TestCollector_ReclaimFailureRetries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uid := env.writePayload(t, "doomed")
	v := env.createVersion(t, "disk", uid)
	if _, err := env.versions.Delete(ctx, v); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(2 * time.Hour)

	boom := errors.New("vault offline")
	log := &reclaimLog{next: bm.ReclaimWith(env.vault), fail: boom}
	c := newCollector(env, bm.CollectorConfig{})

	if _, err := c.Sweep(ctx, log.reclaim); !errors.Is(err, boom) {
		t.Fatalf("Sweep() error = %v, want %v", err, boom)
	}
	pending, err := c.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending[bm.PhaseSure] != 1 {
		t.Errorf("pending after failed reclaim = %v, want one sure candidate", pending)
	}
	if !payloadExists(t, env, uid) {
		t.Error("payload gone although reclaim failed")
	}

	log.fail = nil
	res, err := c.Sweep(ctx, log.reclaim)
	if err != nil {
		t.Fatalf("retry Sweep() error = %v", err)
	}
	if res.Deletions != 1 || payloadExists(t, env, uid) {
		t.Errorf("retry Sweep() = %+v, payload exists = %v", res, payloadExists(t, env, uid))
	}
	if !slices.Equal(log.offered, []string{uid, uid}) {
		t.Errorf("reclaim offered %v, want %s twice", log.offered, uid)
	}
}

func TestCollector_Paging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var uids []string
	for range 5 {
		uids = append(uids, env.writePayload(t, "p"))
	}
	v := env.createVersion(t, "disk", uids...)
	if _, err := env.versions.Delete(ctx, v); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(2 * time.Hour)

	log := &reclaimLog{next: bm.ReclaimWith(env.vault)}
	res, err := newCollector(env, bm.CollectorConfig{PageSize: 2}).Sweep(ctx, log.reclaim)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Pages != 3 || res.Deletions != 5 {
		t.Errorf("Sweep() = %+v, want 3 pages and 5 deletions", res)
	}

	// Each payload is reclaimed exactly once.
	offered := slices.Clone(log.offered)
	slices.Sort(offered)
	want := slices.Clone(uids)
	slices.Sort(want)
	if !slices.Equal(offered, want) {
		t.Errorf("reclaim offered %v, want %v", offered, want)
	}
	if env.vault.Len() != 0 {
		t.Errorf("vault still holds %d payloads", env.vault.Len())
	}
}

func TestCollector_DuplicateCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uid := env.writePayload(t, "twice")
	v1 := env.createVersion(t, "disk", uid, uid)
	v2 := env.createVersion(t, "disk", uid)
	for _, v := range []string{v1, v2} {
		if _, err := env.versions.Delete(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	env.clock.Advance(2 * time.Hour)

	log := &reclaimLog{next: bm.ReclaimWith(env.vault)}
	res, err := newCollector(env, bm.CollectorConfig{}).Sweep(ctx, log.reclaim)
	if err != nil {
		t.Fatal(err)
	}
	if res.Candidates != 3 || res.Deletions != 1 {
		t.Errorf("Sweep() = %+v, want 3 candidate rows and 1 deletion", res)
	}
	if len(log.offered) != 1 {
		t.Errorf("reclaim offered %v, want one uid", log.offered)
	}
}

func TestCollector_CancelledBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newCollector(env, bm.CollectorConfig{}).Sweep(ctx, bm.ReclaimWith(env.vault))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sweep() error = %v, want context.Canceled", err)
	}
	if res.Pages != 0 {
		t.Errorf("Sweep() processed %d pages after cancellation", res.Pages)
	}
}

func TestCollector_CancelBetweenPages(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uids []string
	for range 4 {
		uids = append(uids, env.writePayload(t, "p"))
	}
	v := env.createVersion(t, "disk", uids...)
	if _, err := env.versions.Delete(ctx, v); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(2 * time.Hour)

	reclaim := bm.ReclaimWith(env.vault)
	cancelling := func(ctx context.Context, uids []string) error {
		cancel()
		return reclaim(ctx, uids)
	}

	c := newCollector(env, bm.CollectorConfig{PageSize: 2})
	res, err := c.Sweep(ctx, cancelling)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sweep() error = %v, want context.Canceled", err)
	}
	if res.Pages != 1 || res.Deletions != 2 {
		t.Errorf("Sweep() = %+v, want the first page completed", res)
	}

	pending, err := c.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pending[bm.PhaseMaybe] != 2 || pending[bm.PhaseSure] != 0 {
		t.Errorf("pending after cancel = %v, want 2 maybe", pending)
	}
}
