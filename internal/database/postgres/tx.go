package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bm-go/internal/bm"
)

type pgTx struct {
	tx   pgx.Tx
	ctx  context.Context
	done bool
}

func (t *pgTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	return mapPgError(t.tx.Commit(t.ctx), "commit")
}

func (t *pgTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return mapPgError(t.tx.Rollback(context.WithoutCancel(t.ctx)), "rollback")
}

const versionColumns = `uid, name, created_at, size, size_bytes, valid`

const blockColumns = `version_uid, id, uid, checksum, size, valid, written_at`

const statsColumns = `version_uid, version_name, created_at, version_size_bytes, version_size_blocks,
	bytes_read, blocks_read, bytes_written, blocks_written,
	bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds`

// Versions

func (t *pgTx) InsertVersion(ctx context.Context, v *bm.Version) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO versions (`+versionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		v.UID, v.Name, bm.Stamp(v.CreatedAt), v.Size, v.SizeBytes, int16(v.Validity))
	return mapPgError(err, "insert version")
}

func (t *pgTx) GetVersion(ctx context.Context, uid string) (*bm.Version, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM versions WHERE uid = $1`, uid)
	v, err := scanVersion(row)
	if err != nil {
		return nil, mapPgError(err, "get version")
	}
	return v, nil
}

func (t *pgTx) ListVersions(ctx context.Context) ([]*bm.Version, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+versionColumns+` FROM versions ORDER BY name, created_at, uid`)
	if err != nil {
		return nil, mapPgError(err, "list versions")
	}
	versions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*bm.Version, error) {
		return scanVersion(r)
	})
	if err != nil {
		return nil, mapPgError(err, "list versions")
	}
	return versions, nil
}

func (t *pgTx) SetVersionValidity(ctx context.Context, uid string, validity bm.Validity) error {
	tag, err := t.tx.Exec(ctx, `UPDATE versions SET valid = $1 WHERE uid = $2`, int16(validity), uid)
	if err != nil {
		return mapPgError(err, "set version validity")
	}
	if tag.RowsAffected() == 0 {
		return bm.NewStoreError("set version validity", bm.ErrNotFound, fmt.Errorf("no version %s", uid))
	}
	return nil
}

func (t *pgTx) DeleteVersion(ctx context.Context, uid string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM versions WHERE uid = $1`, uid)
	if err != nil {
		return mapPgError(err, "delete version")
	}
	if tag.RowsAffected() == 0 {
		return bm.NewStoreError("delete version", bm.ErrNotFound, fmt.Errorf("no version %s", uid))
	}
	return nil
}

// Blocks

func (t *pgTx) UpsertBlock(ctx context.Context, b *bm.Block) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO blocks (`+blockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (version_uid, id) DO UPDATE SET
			uid = EXCLUDED.uid,
			checksum = EXCLUDED.checksum,
			size = EXCLUDED.size,
			valid = EXCLUDED.valid,
			written_at = EXCLUDED.written_at`,
		b.VersionUID, b.SeqID, nullable(b.ContentUID), nullable(b.Checksum),
		b.Size, int16(b.Validity), bm.Stamp(b.WrittenAt))
	return mapPgError(err, "upsert block")
}

func (t *pgTx) GetBlock(ctx context.Context, versionUID string, seqID int64) (*bm.Block, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE version_uid = $1 AND id = $2`, versionUID, seqID)
	b, err := scanBlock(row)
	if err != nil {
		return nil, mapPgError(err, "get block")
	}
	return b, nil
}

func (t *pgTx) ListBlocks(ctx context.Context, versionUID string) ([]*bm.Block, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE version_uid = $1 ORDER BY id`, versionUID)
	if err != nil {
		return nil, mapPgError(err, "list blocks")
	}
	blocks, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*bm.Block, error) {
		return scanBlock(r)
	})
	if err != nil {
		return nil, mapPgError(err, "list blocks")
	}
	return blocks, nil
}

func (t *pgTx) DeleteBlocks(ctx context.Context, versionUID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM blocks WHERE version_uid = $1`, versionUID)
	if err != nil {
		return 0, mapPgError(err, "delete blocks")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) EnqueueVersionBlocks(ctx context.Context, versionUID string, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO deleted_blocks (uid, size, delete_candidate, enqueued_at)
		SELECT uid, size, 0, $1 FROM blocks
		WHERE version_uid = $2 AND uid IS NOT NULL
		ORDER BY id`, at.Unix(), versionUID)
	if err != nil {
		return 0, mapPgError(err, "enqueue version blocks")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) FindValidBlockByChecksum(ctx context.Context, checksum string) (*bm.Block, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+blockColumns+` FROM blocks
		WHERE checksum = $1 AND valid = 1 AND uid IS NOT NULL LIMIT 1`, checksum)
	b, err := scanBlock(row)
	if err != nil {
		return nil, mapPgError(err, "find block by checksum")
	}
	return b, nil
}

func (t *pgTx) FindBlockByUID(ctx context.Context, contentUID string) (*bm.Block, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+blockColumns+` FROM blocks WHERE uid = $1 LIMIT 1`, contentUID)
	b, err := scanBlock(row)
	if err != nil {
		return nil, mapPgError(err, "find block by uid")
	}
	return b, nil
}

func (t *pgTx) ListVersionsWithValidBlock(ctx context.Context, contentUID, checksum string) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT version_uid FROM blocks
		WHERE uid = $1 AND checksum = $2 AND valid = 1 ORDER BY version_uid`, contentUID, checksum)
	if err != nil {
		return nil, mapPgError(err, "list versions with block")
	}
	uids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapPgError(err, "list versions with block")
	}
	return uids, nil
}

func (t *pgTx) InvalidateBlocks(ctx context.Context, contentUID, checksum string) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE blocks SET valid = 0 WHERE uid = $1 AND checksum = $2 AND valid = 1`, contentUID, checksum)
	if err != nil {
		return 0, mapPgError(err, "invalidate blocks")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ListContentUIDs(ctx context.Context, prefix string) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT uid FROM blocks
		WHERE uid IS NOT NULL AND left(uid, char_length($1::text)) = $1::text ORDER BY uid`, prefix)
	if err != nil {
		return nil, mapPgError(err, "list content uids")
	}
	uids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapPgError(err, "list content uids")
	}
	return uids, nil
}

// Delete candidates

func (t *pgTx) InsertDeletedBlock(ctx context.Context, d *bm.DeletedBlock) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO deleted_blocks (uid, size, delete_candidate, enqueued_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		d.ContentUID, d.Size, int16(d.Phase), d.EnqueuedAt.Unix()).Scan(&d.ID)
	return mapPgError(err, "insert deleted block")
}

func (t *pgTx) ListDeleteCandidates(ctx context.Context, before time.Time, limit int) ([]*bm.DeletedBlock, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, uid, size, delete_candidate, enqueued_at FROM deleted_blocks
		WHERE enqueued_at < $1 ORDER BY id LIMIT $2`, before.Unix(), limit)
	if err != nil {
		return nil, mapPgError(err, "list delete candidates")
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*bm.DeletedBlock, error) {
		var (
			d        bm.DeletedBlock
			phase    int16
			enqueued int64
		)
		if err := r.Scan(&d.ID, &d.ContentUID, &d.Size, &phase, &enqueued); err != nil {
			return nil, err
		}
		d.Phase = bm.DeletePhase(phase)
		d.EnqueuedAt = time.Unix(enqueued, 0).UTC()
		return &d, nil
	})
	if err != nil {
		return nil, mapPgError(err, "list delete candidates")
	}
	return out, nil
}

func (t *pgTx) SetDeletePhase(ctx context.Context, contentUID string, phase bm.DeletePhase) error {
	_, err := t.tx.Exec(ctx, `UPDATE deleted_blocks SET delete_candidate = $1 WHERE uid = $2`,
		int16(phase), contentUID)
	return mapPgError(err, "set delete phase")
}

func (t *pgTx) DeleteDeletedBlocks(ctx context.Context, contentUID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM deleted_blocks WHERE uid = $1`, contentUID)
	if err != nil {
		return 0, mapPgError(err, "delete deleted blocks")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) CountDeletedBlocks(ctx context.Context) (map[bm.DeletePhase]int64, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT delete_candidate, COUNT(*) FROM deleted_blocks GROUP BY delete_candidate`)
	if err != nil {
		return nil, mapPgError(err, "count deleted blocks")
	}
	defer rows.Close()

	counts := make(map[bm.DeletePhase]int64)
	for rows.Next() {
		var (
			phase int16
			n     int64
		)
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, mapPgError(err, "count deleted blocks")
		}
		counts[bm.DeletePhase(phase)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "count deleted blocks")
	}
	return counts, nil
}

// Stats

func (t *pgTx) InsertStats(ctx context.Context, s *bm.Stats) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stats (`+statsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.VersionUID, s.VersionName, bm.Stamp(s.CreatedAt), s.VersionSizeBytes, s.VersionSizeBlocks,
		s.BytesRead, s.BlocksRead, s.BytesWritten, s.BlocksWritten,
		s.BytesDedup, s.BlocksDedup, s.BytesSparse, s.BlocksSparse,
		int64(s.Duration/time.Second))
	return mapPgError(err, "insert stats")
}

func (t *pgTx) ListStats(ctx context.Context, versionUID string, limit int) ([]*bm.Stats, error) {
	if limit == 0 {
		return nil, nil
	}
	var lim *int64 // NULL means no limit
	if limit > 0 {
		n := int64(limit)
		lim = &n
	}

	var (
		rows pgx.Rows
		err  error
	)
	if versionUID == "" {
		rows, err = t.tx.Query(ctx, `SELECT `+statsColumns+` FROM stats
			ORDER BY created_at DESC, version_uid DESC LIMIT $1`, lim)
	} else {
		rows, err = t.tx.Query(ctx, `SELECT `+statsColumns+` FROM stats
			WHERE version_uid = $1 ORDER BY created_at DESC LIMIT $2`, versionUID, lim)
	}
	if err != nil {
		return nil, mapPgError(err, "list stats")
	}
	newestFirst, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*bm.Stats, error) {
		var (
			s       bm.Stats
			seconds int64
		)
		err := r.Scan(&s.VersionUID, &s.VersionName, &s.CreatedAt, &s.VersionSizeBytes, &s.VersionSizeBlocks,
			&s.BytesRead, &s.BlocksRead, &s.BytesWritten, &s.BlocksWritten,
			&s.BytesDedup, &s.BlocksDedup, &s.BytesSparse, &s.BlocksSparse, &seconds)
		if err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		s.Duration = time.Duration(seconds) * time.Second
		return &s, nil
	})
	if err != nil {
		return nil, mapPgError(err, "list stats")
	}

	out := make([]*bm.Stats, len(newestFirst))
	for i, s := range newestFirst {
		out[len(newestFirst)-1-i] = s
	}
	return out, nil
}

func scanVersion(row pgx.Row) (*bm.Version, error) {
	var (
		v     bm.Version
		valid int16
	)
	if err := row.Scan(&v.UID, &v.Name, &v.CreatedAt, &v.Size, &v.SizeBytes, &valid); err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.Validity = bm.Validity(valid)
	return &v, nil
}

func scanBlock(row pgx.Row) (*bm.Block, error) {
	var (
		b             bm.Block
		uid, checksum *string
		valid         int16
	)
	if err := row.Scan(&b.VersionUID, &b.SeqID, &uid, &checksum, &b.Size, &valid, &b.WrittenAt); err != nil {
		return nil, err
	}
	if uid != nil {
		b.ContentUID = *uid
	}
	if checksum != nil {
		b.Checksum = *checksum
	}
	b.Validity = bm.Validity(valid)
	b.WrittenAt = b.WrittenAt.UTC()
	return &b, nil
}

// nullable maps "" to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
