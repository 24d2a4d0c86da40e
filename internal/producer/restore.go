package producer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"bm-go/internal/bm"
)

// ErrCorrupt is returned after a restore or verify that found at least one
// block whose payload was missing or did not match its checksum.
var ErrCorrupt = errors.New("version has corrupt blocks")

// RestoreResult tallies a restore or verify run.
type RestoreResult struct {
	Blocks int64
	Bytes  int64
	Sparse int64
	// Corrupt lists the sequence ids of blocks that failed verification.
	Corrupt []int64
	// Invalidated lists versions newly marked invalid because of them.
	Invalidated []string
}

// Restorer reads versions back out of the vault.
type Restorer struct {
	versions *bm.VersionManager
	vault    bm.Vault
	logger   bm.Logger
}

func NewRestorer(versions *bm.VersionManager, vault bm.Vault, logger bm.Logger) *Restorer {
	return &Restorer{versions: versions, vault: vault, logger: logger}
}

// Restore writes the version to w, block by block in sequence order. Sparse
// blocks are written as zeros. Every payload is checked against its recorded
// checksum; a mismatch or missing payload invalidates every block sharing
// that payload and the restore carries on with the next block, so the
// result covers the whole version. The returned error wraps ErrCorrupt if
// any block failed.
func (r *Restorer) Restore(ctx context.Context, versionUID string, w io.WriterAt) (*RestoreResult, error) {
	return r.run(ctx, versionUID, w)
}

// Verify is Restore without an output.
func (r *Restorer) Verify(ctx context.Context, versionUID string) (*RestoreResult, error) {
	return r.run(ctx, versionUID, nil)
}

func (r *Restorer) run(ctx context.Context, versionUID string, w io.WriterAt) (*RestoreResult, error) {
	if _, err := r.versions.Get(ctx, versionUID); err != nil {
		return nil, err
	}
	blocks, err := r.versions.ListBlocks(ctx, versionUID)
	if err != nil {
		return nil, err
	}
	log := r.logger.With("version", versionUID)

	res := &RestoreResult{}
	var (
		buf    bytes.Buffer
		zeros  []byte
		offset int64
	)
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if b.Size < 0 || b.Size > bm.MaxBlockSize {
			return res, fmt.Errorf("block %d has size %d outside [0, %d]", b.SeqID, b.Size, bm.MaxBlockSize)
		}

		var data []byte
		if b.IsSparse() {
			if int64(len(zeros)) < b.Size {
				zeros = make([]byte, b.Size)
			}
			data = zeros[:b.Size]
			res.Sparse++
		} else {
			buf.Reset()
			ok, err := r.fetch(ctx, b, &buf)
			if err != nil {
				return res, err
			}
			if !ok {
				res.Corrupt = append(res.Corrupt, b.SeqID)
				affected, err := r.versions.MarkBlocksInvalid(ctx, b.ContentUID, b.Checksum)
				if err != nil {
					return res, fmt.Errorf("reporting corrupt block %d: %w", b.SeqID, err)
				}
				res.Invalidated = append(res.Invalidated, affected...)
				log.Warn("corrupt block", "seq", b.SeqID, "content_uid", b.ContentUID)
				offset += b.Size
				continue
			}
			data = buf.Bytes()
		}

		if w != nil {
			if _, err := w.WriteAt(data, offset); err != nil {
				return res, fmt.Errorf("writing block %d: %w", b.SeqID, err)
			}
		}
		offset += b.Size
		res.Blocks++
		res.Bytes += b.Size
	}

	if len(res.Corrupt) > 0 {
		return res, fmt.Errorf("restoring %s: %w (%d blocks)", versionUID, ErrCorrupt, len(res.Corrupt))
	}
	log.Info("version read back", "blocks", res.Blocks, "bytes", res.Bytes, "sparse", res.Sparse)
	return res, nil
}

// fetch reads the payload of b into buf and reports whether it is intact.
// A missing payload counts as not intact; other vault errors are returned.
func (r *Restorer) fetch(ctx context.Context, b *bm.Block, buf *bytes.Buffer) (bool, error) {
	err := r.vault.ReadPayload(ctx, b.ContentUID, buf)
	if errors.Is(err, bm.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading block %d: %w", b.SeqID, err)
	}
	if int64(buf.Len()) != b.Size {
		return false, nil
	}
	return Checksum(buf.Bytes()) == b.Checksum, nil
}
