// Package producer turns a byte stream into a Version and back. Backup cuts
// the stream into fixed-size blocks, deduplicates them against existing
// payloads and records their placement; Restore reads them back and checks
// every payload against its recorded checksum.
package producer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"bm-go/internal/bm"
)

// DefaultBlockSize is the block size used when Config.BlockSize is unset.
const DefaultBlockSize = 4 << 20

// ErrSizeMismatch is returned when the source yields a different number of
// bytes than announced.
var ErrSizeMismatch = errors.New("source size changed during backup")

// Config tunes a Producer.
type Config struct {
	BlockSize  int64
	FlushEvery int
}

// BackupResult describes a finished backup.
type BackupResult struct {
	VersionUID string
	Stats      bm.Stats
}

// BackupObserver is told about the lifecycle of every backup. BackupFailed
// receives an empty version uid when the version was never created.
type BackupObserver interface {
	BackupStarted(versionUID, name string)
	BackupSucceeded(res *BackupResult)
	BackupFailed(versionUID, name string, err error)
}

// Producer writes streams into versions.
type Producer struct {
	store    bm.Store
	versions *bm.VersionManager
	dedup    *bm.DedupIndex
	vault    bm.Vault
	clock    bm.Clock
	logger   bm.Logger
	config   Config

	observer      BackupObserver
	flushObserver bm.FlushObserver
}

func New(store bm.Store, versions *bm.VersionManager, dedup *bm.DedupIndex, vault bm.Vault, clock bm.Clock, logger bm.Logger, config Config) *Producer {
	if config.BlockSize <= 0 {
		config.BlockSize = DefaultBlockSize
	}
	if config.FlushEvery <= 0 {
		config.FlushEvery = bm.DefaultFlushEvery
	}
	return &Producer{
		store:    store,
		versions: versions,
		dedup:    dedup,
		vault:    vault,
		clock:    clock,
		logger:   logger,
		config:   config,
	}
}

// SetObserver registers o for backup lifecycle events. Nil disables them.
func (p *Producer) SetObserver(o BackupObserver) {
	p.observer = o
}

// SetFlushObserver is passed on to the BlockUpserter of each backup.
func (p *Producer) SetFlushObserver(o bm.FlushObserver) {
	p.flushObserver = o
}

// BlockSize returns the configured block size.
func (p *Producer) BlockSize() int64 {
	return p.config.BlockSize
}

// Backup reads exactly size bytes from r into a new version called name.
//
// Each block is checksummed with SHA-256. All-zero blocks are recorded as
// sparse and never stored. Other blocks reuse the payload of a valid block
// with the same checksum when one exists, either committed or still buffered
// by this backup, and are written to the vault otherwise.
//
// On failure the version is marked invalid and left for the operator to
// delete.
func (p *Producer) Backup(ctx context.Context, name string, r io.Reader, size int64) (*BackupResult, error) {
	if size < 0 {
		return nil, fmt.Errorf("backing up %s: negative size %d", name, size)
	}
	start := time.Now()
	blocks := (size + p.config.BlockSize - 1) / p.config.BlockSize

	versionUID, err := p.versions.CreateVersion(ctx, name, blocks, size)
	if err != nil {
		p.failed("", name, err)
		return nil, fmt.Errorf("backing up %s: %w", name, err)
	}
	if p.observer != nil {
		p.observer.BackupStarted(versionUID, name)
	}
	log := p.logger.With("version", versionUID)

	stats := bm.Stats{
		VersionUID:        versionUID,
		VersionName:       name,
		CreatedAt:         bm.Stamp(p.clock.Now()),
		VersionSizeBytes:  size,
		VersionSizeBlocks: blocks,
	}
	if err := p.copyBlocks(ctx, versionUID, r, size, &stats); err != nil {
		p.abort(ctx, log, versionUID, name, err)
		return nil, fmt.Errorf("backing up %s: %w", name, err)
	}

	stats.Duration = time.Since(start).Truncate(time.Second)
	if err := p.versions.RecordStats(ctx, &stats); err != nil {
		p.abort(ctx, log, versionUID, name, err)
		return nil, fmt.Errorf("backing up %s: %w", name, err)
	}

	res := &BackupResult{VersionUID: versionUID, Stats: stats}
	log.Info("backup finished",
		"blocks", stats.BlocksRead,
		"written", stats.BlocksWritten,
		"dedup", stats.BlocksDedup,
		"sparse", stats.BlocksSparse,
		"duration", stats.Duration)
	if p.observer != nil {
		p.observer.BackupSucceeded(res)
	}
	return res, nil
}

func (p *Producer) copyBlocks(ctx context.Context, versionUID string, r io.Reader, size int64, stats *bm.Stats) (err error) {
	upserter := bm.NewBlockUpserter(p.store, p.clock, p.logger, p.config.FlushEvery)
	if p.flushObserver != nil {
		upserter.SetObserver(p.flushObserver)
	}
	// Record what was written so deleting the failed version queues its
	// payloads for collection.
	defer func() {
		if err != nil {
			if ferr := upserter.Flush(context.WithoutCancel(ctx)); ferr != nil {
				p.logger.Warn("flushing blocks of failed backup", "version", versionUID, "error", ferr)
			}
		}
	}()

	buf := make([]byte, p.config.BlockSize)
	var seq int64
	for stats.BytesRead < size {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := min(p.config.BlockSize, size-stats.BytesRead)
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: got %d of %d bytes", ErrSizeMismatch, stats.BytesRead+int64(n), size)
			}
			return fmt.Errorf("reading block %d: %w", seq, err)
		}
		data := buf[:n]

		b := bm.Block{
			VersionUID: versionUID,
			SeqID:      seq,
			Size:       int64(n),
			Validity:   bm.Valid,
		}
		switch {
		case isZero(data):
			stats.BlocksSparse++
			stats.BytesSparse += b.Size
		default:
			b.Checksum = Checksum(data)
			uid, found, err := p.lookup(ctx, upserter, b.Checksum)
			if err != nil {
				return err
			}
			if found {
				stats.BlocksDedup++
				stats.BytesDedup += b.Size
			} else {
				uid, err = p.vault.WritePayload(ctx, bytes.NewReader(data), b.Size)
				if err != nil {
					return fmt.Errorf("writing block %d: %w", seq, err)
				}
				stats.BlocksWritten++
				stats.BytesWritten += b.Size
			}
			b.ContentUID = uid
		}

		if err := upserter.SetBlock(ctx, b, false); err != nil {
			return err
		}
		stats.BlocksRead++
		stats.BytesRead += b.Size
		seq++
	}

	// Trailing bytes mean the source grew.
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, size)
	}
	return upserter.Close(ctx)
}

func (p *Producer) lookup(ctx context.Context, upserter *bm.BlockUpserter, checksum string) (string, bool, error) {
	if uid, ok := upserter.PendingUID(checksum); ok {
		return uid, true, nil
	}
	return p.dedup.FindValidBlockByChecksum(ctx, checksum)
}

func (p *Producer) abort(ctx context.Context, log bm.Logger, versionUID, name string, cause error) {
	log.Error("backup failed", "error", cause)
	if err := p.versions.MarkInvalid(context.WithoutCancel(ctx), versionUID); err != nil {
		log.Error("marking failed version invalid", "error", err)
	}
	p.failed(versionUID, name, cause)
}

func (p *Producer) failed(versionUID, name string, err error) {
	if p.observer != nil {
		p.observer.BackupFailed(versionUID, name, err)
	}
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isZero(data []byte) bool {
	for _, c := range data {
		if c != 0 {
			return false
		}
	}
	return true
}
