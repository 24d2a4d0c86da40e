package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bm-go/internal/bm"
	"bm-go/internal/config"
	"bm-go/internal/database"
	"bm-go/internal/encryption"
	"bm-go/internal/metrics"
	"bm-go/internal/producer"
	"bm-go/internal/vault"
)

// ErrPassphraseRequired is returned by operations that read payloads from an
// encrypted vault before Unlock.
var ErrPassphraseRequired = errors.New("vault is encrypted: passphrase required")

// Options adjust how an App is built. The zero value is what the CLI uses.
type Options struct {
	// Stderr receives a copy of every log line. Nil means os.Stderr.
	Stderr   io.Writer
	LogLevel slog.Level
	Clock    bm.Clock
	IDs      bm.IDGenerator
}

// App is the layer between the CLI and the core components. It builds
// everything from config and owns the store, vault and log file.
type App struct {
	cfg       *config.Config
	op        *Operation
	clock     bm.Clock
	logger    bm.Logger
	logFile   *os.File
	store     bm.Store
	vault     bm.Vault
	encryptor bm.Encryptor

	versions    *bm.VersionManager
	dedup       *bm.DedupIndex
	collector   *bm.Collector
	interchange *bm.Interchange
	producer    *producer.Producer
	restorer    *producer.Restorer
	reconciler  *producer.Reconciler

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// New builds an App for one invocation of the named operation. The caller
// must call Close.
func New(ctx context.Context, cfg *config.Config, name string, args []string, opts Options) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = bm.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = bm.UUIDGenerator{}
	}

	op := NewOperation(name, args, opts.Clock.Now())
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, opts.LogLevel, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a := &App{cfg: cfg, op: op, clock: opts.Clock, logger: logger, logFile: logFile}
	if err := a.open(ctx, opts); err != nil {
		a.closeResources()
		return nil, err
	}
	logger.Debug("operation started", "operation", op.String())
	return a, nil
}

func (a *App) open(ctx context.Context, opts Options) error {
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	a.vault, err = vault.NewVaultFromConfig(ctx, a.cfg.Vault, enc)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}

	a.store, err = database.NewStoreFromConfig(ctx, a.cfg.Database, a.cfg.HostID)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.versions = bm.NewVersionManager(a.store, a.clock, opts.IDs, a.logger)
	a.dedup = bm.NewDedupIndex(a.store)
	a.collector = bm.NewCollector(a.store, a.clock, a.logger.With("component", "gc"), bm.CollectorConfig{
		GracePeriod: a.cfg.GC.GracePeriod.Duration,
		PageSize:    a.cfg.GC.PageSize,
	})
	a.collector.SetObserver(&sweepReporter{metrics: a.metrics, collector: a.collector, logger: a.logger})
	a.interchange = bm.NewInterchange(a.store, a.logger)

	a.producer = producer.New(a.store, a.versions, a.dedup, a.vault, a.clock, a.logger, producer.Config{
		BlockSize:  a.cfg.Blocks.BlockSize,
		FlushEvery: a.cfg.Blocks.FlushEvery,
	})
	a.producer.SetObserver(a.metrics)
	a.producer.SetFlushObserver(a.metrics)
	a.restorer = producer.NewRestorer(a.versions, a.vault, a.logger)
	a.reconciler = producer.NewReconciler(a.dedup, a.vault, a.logger)
	return nil
}

// Migrate creates or upgrades the schema of the configured entity store.
func Migrate(ctx context.Context, cfg *config.Config) error {
	if err := database.Migrate(ctx, cfg.Database, cfg.HostID); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Logger returns the operation's logger.
func (a *App) Logger() bm.Logger { return a.logger }

// Operation returns the running operation.
func (a *App) Operation() *Operation { return a.op }

// NeedsPassphrase reports whether payload reads require Unlock first.
func (a *App) NeedsPassphrase() bool {
	_, ok := a.vault.(*vault.EncryptedVault)
	return ok
}

// Unlock opens the private key so that encrypted payloads can be read.
func (a *App) Unlock(passphrase string) error {
	ev, ok := a.vault.(*vault.EncryptedVault)
	if !ok {
		return nil
	}
	if err := ev.Unlock(passphrase); err != nil {
		return fmt.Errorf("unlocking vault: %w", err)
	}
	return nil
}

// ValidateVault checks that the vault is reachable and writable.
func (a *App) ValidateVault(ctx context.Context) error {
	return a.vault.ValidateSetup(ctx)
}

func (a *App) CreateVersion(ctx context.Context, name string, sizeBlocks, sizeBytes int64) (string, error) {
	return a.versions.CreateVersion(ctx, name, sizeBlocks, sizeBytes)
}

func (a *App) ListVersions(ctx context.Context) ([]*bm.Version, error) {
	return a.versions.List(ctx)
}

func (a *App) GetVersion(ctx context.Context, uid string) (*bm.Version, error) {
	return a.versions.Get(ctx, uid)
}

func (a *App) ListBlocks(ctx context.Context, uid string) ([]*bm.Block, error) {
	return a.versions.ListBlocks(ctx, uid)
}

// SetVersionValidity marks the version valid or invalid.
func (a *App) SetVersionValidity(ctx context.Context, uid string, valid bool) error {
	if valid {
		return a.versions.MarkValid(ctx, uid)
	}
	return a.versions.MarkInvalid(ctx, uid)
}

func (a *App) DeleteVersion(ctx context.Context, uid string) (int64, error) {
	return a.versions.Delete(ctx, uid)
}

// InvalidateBlocks marks every block holding the payload invalid and returns
// the versions it affected. An empty checksum is looked up from any block
// referencing the uid.
func (a *App) InvalidateBlocks(ctx context.Context, contentUID, checksum string) ([]string, error) {
	if checksum == "" {
		b, err := a.dedup.BlockByContentUID(ctx, contentUID)
		if err != nil {
			return nil, err
		}
		checksum = b.Checksum
	}
	return a.versions.MarkBlocksInvalid(ctx, contentUID, checksum)
}

// LookupChecksum returns the content uid a new block with this checksum
// would share.
func (a *App) LookupChecksum(ctx context.Context, checksum string) (string, bool, error) {
	return a.dedup.FindValidBlockByChecksum(ctx, checksum)
}

func (a *App) FindBlock(ctx context.Context, contentUID string) (*bm.Block, error) {
	return a.dedup.BlockByContentUID(ctx, contentUID)
}

func (a *App) ListContentUIDs(ctx context.Context, prefix string) ([]string, error) {
	return a.dedup.ListAllContentUIDs(ctx, prefix)
}

// Sweep runs one delete-candidate sweep against the vault.
func (a *App) Sweep(ctx context.Context) (bm.SweepResult, error) {
	return a.collector.Sweep(ctx, bm.ReclaimWith(a.vault))
}

// PendingCandidates counts queued delete candidates per phase.
func (a *App) PendingCandidates(ctx context.Context) (map[bm.DeletePhase]int64, error) {
	return a.collector.Pending(ctx)
}

// RunDaemon sweeps every gc.interval until ctx is done. When
// metrics.listen_addr is set, /metrics and /healthz are served meanwhile.
func (a *App) RunDaemon(ctx context.Context) error {
	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		srv := metrics.NewServer(addr, metrics.NewRouter(a.registry, a.healthy), a.logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer srv.Close()
	}

	w := bm.NewSweepWorker(a.collector, bm.ReclaimWith(a.vault), a.cfg.GC.Interval.Duration, a.logger)
	a.logger.Info("gc daemon started", "interval", a.cfg.GC.Interval.Duration, "grace_period", a.cfg.GC.GracePeriod.Duration)
	w.Start()
	<-ctx.Done()
	w.Stop()
	a.logger.Info("gc daemon stopped")
	return nil
}

func (a *App) healthy(ctx context.Context) error {
	_, err := a.collector.Pending(ctx)
	return err
}

// Gatherer exposes the App's metrics registry.
func (a *App) Gatherer() prometheus.Gatherer { return a.registry }

func (a *App) Export(ctx context.Context, uid string, w io.Writer) error {
	return a.interchange.Export(ctx, uid, w)
}

func (a *App) Import(ctx context.Context, r io.Reader) (string, error) {
	return a.interchange.Import(ctx, r)
}

func (a *App) ListStats(ctx context.Context, versionUID string, limit int) ([]*bm.Stats, error) {
	return a.versions.ListStats(ctx, versionUID, limit)
}

// Backup stores the file or block device at path as a new version.
func (a *App) Backup(ctx context.Context, name, path string) (*producer.BackupResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	size, err := sourceSize(f)
	if err != nil {
		return nil, err
	}
	return a.BackupReader(ctx, name, f, size)
}

// BackupReader stores exactly size bytes from r as a new version.
func (a *App) BackupReader(ctx context.Context, name string, r io.Reader, size int64) (*producer.BackupResult, error) {
	lock, err := a.lockForBackup()
	if err != nil {
		return nil, err
	}
	defer lock.release()
	return a.producer.Backup(ctx, name, r, size)
}

// Restore writes the version to a new file at path. An existing file is
// only overwritten when force is set.
func (a *App) Restore(ctx context.Context, uid, path string, force bool) (*producer.RestoreResult, error) {
	if err := a.checkUnlocked(); err != nil {
		return nil, err
	}
	v, err := a.versions.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating restore target: %w", err)
	}
	res, err := a.restorer.Restore(ctx, uid, f)
	if err == nil {
		err = f.Truncate(v.SizeBytes)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing restore target: %w", cerr)
	}
	return res, err
}

// Verify reads every block of the version back and checks its checksum.
func (a *App) Verify(ctx context.Context, uid string) (*producer.RestoreResult, error) {
	if err := a.checkUnlocked(); err != nil {
		return nil, err
	}
	return a.restorer.Verify(ctx, uid)
}

// Reconcile lists orphaned payloads. Deleting them needs the exclusive vault
// lock and fails with ErrBackupRunning while any backup holds it.
func (a *App) Reconcile(ctx context.Context, prefix string, remove bool) (*producer.ReconcileResult, error) {
	if remove {
		lock, err := a.lockForReconcile()
		if err != nil {
			return nil, err
		}
		defer lock.release()
	}
	return a.reconciler.Reconcile(ctx, prefix, remove)
}

// SnapshotDatabase writes a consistent copy of a SQLite entity store to path.
func (a *App) SnapshotDatabase(path string) error {
	s, ok := a.store.(*database.SQLiteStore)
	if !ok {
		return fmt.Errorf("database snapshots need a sqlite store, have %s", a.cfg.Database.Type)
	}
	return s.BackupTo(path)
}

func (a *App) checkUnlocked() error {
	if ev, ok := a.vault.(*vault.EncryptedVault); ok && !ev.Unlocked() {
		return ErrPassphraseRequired
	}
	return nil
}

// Close finishes the operation with the outcome err, logs it and releases
// every resource. It returns the first error from closing.
func (a *App) Close(err error) error {
	a.op.Finish(err, a.clock.Now())
	if err != nil {
		a.logger.Error("operation failed", "operation", a.op.String(), "error", err)
	} else {
		a.logger.Debug("operation finished", "operation", a.op.String(),
			"duration", a.op.Duration(a.clock.Now()).Truncate(time.Millisecond))
	}
	return a.closeResources()
}

func (a *App) closeResources() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// sweepReporter forwards sweep events to the metrics and refreshes the
// backlog gauge after every sweep.
type sweepReporter struct {
	metrics   *metrics.Metrics
	collector *bm.Collector
	logger    bm.Logger
}

func (r *sweepReporter) PageSwept(falsePositives, deletions int) {
	r.metrics.PageSwept(falsePositives, deletions)
}

func (r *sweepReporter) SweepFinished(res bm.SweepResult, err error) {
	r.metrics.SweepFinished(res, err)
	counts, perr := r.collector.Pending(context.Background())
	if perr != nil {
		r.logger.Warn("counting delete candidates", "error", perr)
		return
	}
	r.metrics.SetPending(counts)
}

// sourceSize returns the size of a regular file or block device.
func sourceSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if info.Mode().IsRegular() {
		return info.Size(), nil
	}
	// Block devices report size zero; seeking to the end finds it.
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("sizing source: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding source: %w", err)
	}
	return end, nil
}
