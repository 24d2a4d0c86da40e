package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"bm-go/internal/bm"
	"bm-go/internal/producer"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	// Vectors only appear once a label set exists.
	m.SweepFinished(bm.SweepResult{}, nil)
	m.SetPending(nil)
	m.BackupSucceeded(&producer.BackupResult{})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"bm_gc_sweeps_total",
		"bm_gc_sweep_duration_seconds",
		"bm_gc_candidates_total",
		"bm_gc_false_positives_total",
		"bm_gc_deletions_total",
		"bm_gc_pending_candidates",
		"bm_blocks_flushed_total",
		"bm_blocks_flush_duration_seconds",
		"bm_backup_runs_total",
		"bm_backup_running",
		"bm_backup_bytes_total",
		"bm_backup_blocks_total",
		"bm_backup_last_size_bytes",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestMetrics_Sweep(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PageSwept(2, 3)
	m.PageSwept(0, 1)
	m.SweepFinished(bm.SweepResult{Candidates: 7, Duration: time.Second}, nil)
	m.SweepFinished(bm.SweepResult{Candidates: 1}, errors.New("boom"))

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"false positives", m.SweepFalsePositives, 2},
		{"deletions", m.SweepDeletions, 4},
		{"candidates", m.SweepCandidates, 8},
		{"successes", m.SweepsTotal.WithLabelValues(ResultSuccess), 1},
		{"failures", m.SweepsTotal.WithLabelValues(ResultFailure), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if n := testutil.CollectAndCount(m.SweepDuration); n != 1 {
		t.Errorf("sweep duration series = %d, want 1", n)
	}
}

func TestMetrics_SetPending(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetPending(map[bm.DeletePhase]int64{bm.PhaseMaybe: 5, bm.PhaseSure: 2})
	m.SetPending(map[bm.DeletePhase]int64{bm.PhaseMaybe: 3})

	if got := testutil.ToFloat64(m.PendingCandidates.WithLabelValues("maybe")); got != 3 {
		t.Errorf("maybe = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.PendingCandidates.WithLabelValues("sure")); got != 0 {
		t.Errorf("sure = %v, want 0", got)
	}
}

func TestMetrics_Flush(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.BlocksFlushed(1000, 20*time.Millisecond)
	m.BlocksFlushed(3, time.Millisecond)

	if got := testutil.ToFloat64(m.FlushedBlocks); got != 1003 {
		t.Errorf("flushed = %v, want 1003", got)
	}
}

func TestMetrics_Backup(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BackupStarted("v-1", "disk")
	if got := testutil.ToFloat64(m.BackupsRunning); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	m.BackupSucceeded(&producer.BackupResult{
		VersionUID: "v-1",
		Stats: bm.Stats{
			VersionSizeBytes: 100,
			BytesRead:        100,
			BlocksRead:       10,
			BytesWritten:     40,
			BlocksWritten:    4,
			BytesDedup:       50,
			BlocksDedup:      5,
			BytesSparse:      10,
			BlocksSparse:     1,
		},
	})
	m.BackupStarted("v-2", "disk")
	m.BackupFailed("v-2", "disk", errors.New("read error"))
	m.BackupFailed("", "disk", errors.New("store down"))

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"running", m.BackupsRunning, 0},
		{"successes", m.BackupsTotal.WithLabelValues(ResultSuccess), 1},
		{"failures", m.BackupsTotal.WithLabelValues(ResultFailure), 2},
		{"bytes written", m.BackupBytes.WithLabelValues(KindWritten), 40},
		{"bytes dedup", m.BackupBytes.WithLabelValues(KindDedup), 50},
		{"blocks sparse", m.BackupBlocks.WithLabelValues(KindSparse), 1},
		{"last size", m.LastBackupBytes, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.PageSwept(1, 1)
	m.SweepFinished(bm.SweepResult{}, nil)
	m.SetPending(nil)
	m.BlocksFlushed(1, time.Second)
	m.BackupStarted("v", "n")
	m.BackupSucceeded(&producer.BackupResult{})
	m.BackupFailed("v", "n", nil)
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BlocksFlushed(7, time.Millisecond)

	healthy := true
	h := NewRouter(reg, func(context.Context) error {
		if !healthy {
			return errors.New("store unavailable")
		}
		return nil
	})

	get := func(path string) (int, string) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		body, _ := io.ReadAll(rec.Body)
		return rec.Code, string(body)
	}

	code, body := get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "bm_blocks_flushed_total 7") {
		t.Errorf("/metrics = %d %q", code, body)
	}

	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	healthy = false
	if code, body := get("/healthz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "store unavailable") {
		t.Errorf("/healthz unhealthy = %d %q", code, body)
	}

	if code, _ := get("/nope"); code != http.StatusNotFound {
		t.Errorf("/nope = %d, want 404", code)
	}
}

func TestServer_StartClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	s := NewServer("127.0.0.1:0", NewRouter(reg, nil), bm.NewNopLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", resp.StatusCode)
	}
}
