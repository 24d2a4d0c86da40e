// Package metrics exports sweep, block flush and backup activity to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bm-go/internal/bm"
	"bm-go/internal/producer"
)

const namespace = "bm"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Byte kind label values for BackupBytes.
const (
	KindRead    = "read"
	KindWritten = "written"
	KindDedup   = "dedup"
	KindSparse  = "sparse"
)

// FlushLatencyBuckets cover one SQLite transaction of up to a few thousand rows.
var FlushLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// SweepDurationBuckets cover sweeps from an empty queue to a large backlog.
var SweepDurationBuckets = []float64{0.01, 0.1, 1, 5, 15, 60, 300, 900, 3600}

// Metrics implements bm.SweepObserver, bm.FlushObserver and
// producer.BackupObserver. A nil *Metrics ignores every call.
type Metrics struct {
	SweepsTotal         *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	SweepCandidates     prometheus.Counter
	SweepFalsePositives prometheus.Counter
	SweepDeletions      prometheus.Counter
	PendingCandidates   *prometheus.GaugeVec

	FlushedBlocks prometheus.Counter
	FlushLatency  prometheus.Histogram

	BackupsTotal    *prometheus.CounterVec
	BackupsRunning  prometheus.Gauge
	BackupBytes     *prometheus.CounterVec
	BackupBlocks    *prometheus.CounterVec
	LastBackupBytes prometheus.Gauge
}

var (
	_ bm.SweepObserver        = (*Metrics)(nil)
	_ bm.FlushObserver        = (*Metrics)(nil)
	_ producer.BackupObserver = (*Metrics)(nil)
)

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SweepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "sweeps_total",
			Help:      "Delete-candidate sweeps by result.",
		}, []string{"result"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a delete-candidate sweep.",
			Buckets:   SweepDurationBuckets,
		}),
		SweepCandidates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "candidates_total",
			Help:      "Delete-candidate rows examined.",
		}),
		SweepFalsePositives: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "false_positives_total",
			Help:      "Candidate content uids found still referenced.",
		}),
		SweepDeletions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "deletions_total",
			Help:      "Content uids confirmed unreferenced and reclaimed.",
		}),
		PendingCandidates: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "pending_candidates",
			Help:      "Delete-candidate rows by phase after the last sweep.",
		}, []string{"phase"}),
		FlushedBlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocks",
			Name:      "flushed_total",
			Help:      "Block placements committed by the block upserter.",
		}),
		FlushLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "blocks",
			Name:      "flush_duration_seconds",
			Help:      "Duration of one block flush transaction.",
			Buckets:   FlushLatencyBuckets,
		}),
		BackupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Finished backups by result.",
		}, []string{"result"}),
		BackupsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "running",
			Help:      "Backups in progress.",
		}),
		BackupBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "bytes_total",
			Help:      "Bytes handled by successful backups, by kind (read, written, dedup, sparse).",
		}, []string{"kind"}),
		BackupBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "blocks_total",
			Help:      "Blocks handled by successful backups, by kind (read, written, dedup, sparse).",
		}, []string{"kind"}),
		LastBackupBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "last_size_bytes",
			Help:      "Logical size of the most recent successful backup.",
		}),
	}
}

func (m *Metrics) PageSwept(falsePositives, deletions int) {
	if m == nil {
		return
	}
	m.SweepFalsePositives.Add(float64(falsePositives))
	m.SweepDeletions.Add(float64(deletions))
}

func (m *Metrics) SweepFinished(res bm.SweepResult, err error) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(result(err)).Inc()
	m.SweepDuration.Observe(res.Duration.Seconds())
	m.SweepCandidates.Add(float64(res.Candidates))
}

// SetPending records the candidate backlog as returned by Collector.Pending.
func (m *Metrics) SetPending(counts map[bm.DeletePhase]int64) {
	if m == nil {
		return
	}
	for _, p := range []bm.DeletePhase{bm.PhaseMaybe, bm.PhaseSure, bm.PhaseDeleted} {
		m.PendingCandidates.WithLabelValues(p.String()).Set(float64(counts[p]))
	}
}

func (m *Metrics) BlocksFlushed(count int, took time.Duration) {
	if m == nil {
		return
	}
	m.FlushedBlocks.Add(float64(count))
	m.FlushLatency.Observe(took.Seconds())
}

func (m *Metrics) BackupStarted(versionUID, name string) {
	if m == nil {
		return
	}
	m.BackupsRunning.Inc()
}

func (m *Metrics) BackupSucceeded(res *producer.BackupResult) {
	if m == nil {
		return
	}
	m.BackupsRunning.Dec()
	m.BackupsTotal.WithLabelValues(ResultSuccess).Inc()

	s := res.Stats
	m.BackupBytes.WithLabelValues(KindRead).Add(float64(s.BytesRead))
	m.BackupBytes.WithLabelValues(KindWritten).Add(float64(s.BytesWritten))
	m.BackupBytes.WithLabelValues(KindDedup).Add(float64(s.BytesDedup))
	m.BackupBytes.WithLabelValues(KindSparse).Add(float64(s.BytesSparse))
	m.BackupBlocks.WithLabelValues(KindRead).Add(float64(s.BlocksRead))
	m.BackupBlocks.WithLabelValues(KindWritten).Add(float64(s.BlocksWritten))
	m.BackupBlocks.WithLabelValues(KindDedup).Add(float64(s.BlocksDedup))
	m.BackupBlocks.WithLabelValues(KindSparse).Add(float64(s.BlocksSparse))
	m.LastBackupBytes.Set(float64(s.VersionSizeBytes))
}

func (m *Metrics) BackupFailed(versionUID, name string, err error) {
	if m == nil {
		return
	}
	// A backup whose version was never created was never counted as running.
	if versionUID != "" {
		m.BackupsRunning.Dec()
	}
	m.BackupsTotal.WithLabelValues(ResultFailure).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
