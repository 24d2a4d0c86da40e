// Maintained by hand in the layout sqlc v1.29.0 emits for sqlc.yaml.
// Edit together with queries.sql and schema.sql.

package sqlc

import (
	"context"
	"database/sql"
	"time"
)

const countDeletedBlocksByPhase = `-- name: CountDeletedBlocksByPhase :many
SELECT delete_candidate, COUNT(*) AS count
FROM deleted_blocks
GROUP BY delete_candidate
`

type CountDeletedBlocksByPhaseRow struct {
	DeleteCandidate int64
	Count           int64
}

func (q *Queries) CountDeletedBlocksByPhase(ctx context.Context) ([]CountDeletedBlocksByPhaseRow, error) {
	rows, err := q.db.QueryContext(ctx, countDeletedBlocksByPhase)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountDeletedBlocksByPhaseRow
	for rows.Next() {
		var i CountDeletedBlocksByPhaseRow
		if err := rows.Scan(&i.DeleteCandidate, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteBlocksByVersion = `-- name: DeleteBlocksByVersion :execrows
DELETE FROM blocks WHERE version_uid = ?
`

func (q *Queries) DeleteBlocksByVersion(ctx context.Context, versionUid string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteBlocksByVersion, versionUid)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteDeletedBlocksByUID = `-- name: DeleteDeletedBlocksByUID :execrows
DELETE FROM deleted_blocks WHERE uid = ?
`

func (q *Queries) DeleteDeletedBlocksByUID(ctx context.Context, uid string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteDeletedBlocksByUID, uid)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteVersion = `-- name: DeleteVersion :execrows
DELETE FROM versions WHERE uid = ?
`

func (q *Queries) DeleteVersion(ctx context.Context, uid string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteVersion, uid)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const enqueueVersionBlocks = `-- name: EnqueueVersionBlocks :execrows
INSERT INTO deleted_blocks (uid, size, delete_candidate, enqueued_at)
SELECT b.uid, b.size, 0, ?1
FROM blocks b
WHERE b.version_uid = ?2 AND b.uid IS NOT NULL
ORDER BY b.id
`

type EnqueueVersionBlocksParams struct {
	EnqueuedAt int64
	VersionUid string
}

func (q *Queries) EnqueueVersionBlocks(ctx context.Context, arg EnqueueVersionBlocksParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, enqueueVersionBlocks, arg.EnqueuedAt, arg.VersionUid)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getBlock = `-- name: GetBlock :one
SELECT version_uid, id, uid, checksum, size, valid, written_at
FROM blocks
WHERE version_uid = ? AND id = ?
`

type GetBlockParams struct {
	VersionUid string
	ID         int64
}

func (q *Queries) GetBlock(ctx context.Context, arg GetBlockParams) (Block, error) {
	row := q.db.QueryRowContext(ctx, getBlock, arg.VersionUid, arg.ID)
	var i Block
	err := row.Scan(
		&i.VersionUid,
		&i.ID,
		&i.Uid,
		&i.Checksum,
		&i.Size,
		&i.Valid,
		&i.WrittenAt,
	)
	return i, err
}

const getBlockByUID = `-- name: GetBlockByUID :one
SELECT version_uid, id, uid, checksum, size, valid, written_at
FROM blocks
WHERE uid = ?
LIMIT 1
`

func (q *Queries) GetBlockByUID(ctx context.Context, uid sql.NullString) (Block, error) {
	row := q.db.QueryRowContext(ctx, getBlockByUID, uid)
	var i Block
	err := row.Scan(
		&i.VersionUid,
		&i.ID,
		&i.Uid,
		&i.Checksum,
		&i.Size,
		&i.Valid,
		&i.WrittenAt,
	)
	return i, err
}

const getValidBlockByChecksum = `-- name: GetValidBlockByChecksum :one
SELECT version_uid, id, uid, checksum, size, valid, written_at
FROM blocks
WHERE checksum = ? AND valid = 1 AND uid IS NOT NULL
LIMIT 1
`

func (q *Queries) GetValidBlockByChecksum(ctx context.Context, checksum sql.NullString) (Block, error) {
	row := q.db.QueryRowContext(ctx, getValidBlockByChecksum, checksum)
	var i Block
	err := row.Scan(
		&i.VersionUid,
		&i.ID,
		&i.Uid,
		&i.Checksum,
		&i.Size,
		&i.Valid,
		&i.WrittenAt,
	)
	return i, err
}

const getVersion = `-- name: GetVersion :one
SELECT uid, name, created_at, size, size_bytes, valid
FROM versions
WHERE uid = ?
`

func (q *Queries) GetVersion(ctx context.Context, uid string) (Version, error) {
	row := q.db.QueryRowContext(ctx, getVersion, uid)
	var i Version
	err := row.Scan(
		&i.Uid,
		&i.Name,
		&i.CreatedAt,
		&i.Size,
		&i.SizeBytes,
		&i.Valid,
	)
	return i, err
}

const insertDeletedBlock = `-- name: InsertDeletedBlock :one
INSERT INTO deleted_blocks (uid, size, delete_candidate, enqueued_at)
VALUES (?, ?, ?, ?)
RETURNING id
`

type InsertDeletedBlockParams struct {
	Uid             string
	Size            int64
	DeleteCandidate int64
	EnqueuedAt      int64
}

func (q *Queries) InsertDeletedBlock(ctx context.Context, arg InsertDeletedBlockParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertDeletedBlock,
		arg.Uid,
		arg.Size,
		arg.DeleteCandidate,
		arg.EnqueuedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertStats = `-- name: InsertStats :exec
INSERT INTO stats (
    version_uid, version_name, created_at, version_size_bytes, version_size_blocks,
    bytes_read, blocks_read, bytes_written, blocks_written,
    bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertStatsParams struct {
	VersionUid        string
	VersionName       string
	CreatedAt         time.Time
	VersionSizeBytes  int64
	VersionSizeBlocks int64
	BytesRead         int64
	BlocksRead        int64
	BytesWritten      int64
	BlocksWritten     int64
	BytesDedup        int64
	BlocksDedup       int64
	BytesSparse       int64
	BlocksSparse      int64
	DurationSeconds   int64
}

func (q *Queries) InsertStats(ctx context.Context, arg InsertStatsParams) error {
	_, err := q.db.ExecContext(ctx, insertStats,
		arg.VersionUid,
		arg.VersionName,
		arg.CreatedAt,
		arg.VersionSizeBytes,
		arg.VersionSizeBlocks,
		arg.BytesRead,
		arg.BlocksRead,
		arg.BytesWritten,
		arg.BlocksWritten,
		arg.BytesDedup,
		arg.BlocksDedup,
		arg.BytesSparse,
		arg.BlocksSparse,
		arg.DurationSeconds,
	)
	return err
}

const insertVersion = `-- name: InsertVersion :exec
INSERT INTO versions (uid, name, created_at, size, size_bytes, valid)
VALUES (?, ?, ?, ?, ?, ?)
`

type InsertVersionParams struct {
	Uid       string
	Name      string
	CreatedAt time.Time
	Size      int64
	SizeBytes int64
	Valid     int64
}

func (q *Queries) InsertVersion(ctx context.Context, arg InsertVersionParams) error {
	_, err := q.db.ExecContext(ctx, insertVersion,
		arg.Uid,
		arg.Name,
		arg.CreatedAt,
		arg.Size,
		arg.SizeBytes,
		arg.Valid,
	)
	return err
}

const invalidateBlocks = `-- name: InvalidateBlocks :execrows
UPDATE blocks SET valid = 0
WHERE uid = ? AND checksum = ? AND valid = 1
`

type InvalidateBlocksParams struct {
	Uid      sql.NullString
	Checksum sql.NullString
}

func (q *Queries) InvalidateBlocks(ctx context.Context, arg InvalidateBlocksParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, invalidateBlocks, arg.Uid, arg.Checksum)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listBlocksByVersion = `-- name: ListBlocksByVersion :many
SELECT version_uid, id, uid, checksum, size, valid, written_at
FROM blocks
WHERE version_uid = ?
ORDER BY id
`

func (q *Queries) ListBlocksByVersion(ctx context.Context, versionUid string) ([]Block, error) {
	rows, err := q.db.QueryContext(ctx, listBlocksByVersion, versionUid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Block
	for rows.Next() {
		var i Block
		if err := rows.Scan(
			&i.VersionUid,
			&i.ID,
			&i.Uid,
			&i.Checksum,
			&i.Size,
			&i.Valid,
			&i.WrittenAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listContentUIDs = `-- name: ListContentUIDs :many
SELECT DISTINCT uid
FROM blocks
WHERE uid IS NOT NULL AND substr(uid, 1, length(?1)) = ?1
ORDER BY uid
`

func (q *Queries) ListContentUIDs(ctx context.Context, prefix string) ([]sql.NullString, error) {
	rows, err := q.db.QueryContext(ctx, listContentUIDs, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []sql.NullString
	for rows.Next() {
		var uid sql.NullString
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		items = append(items, uid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listDeleteCandidates = `-- name: ListDeleteCandidates :many
SELECT id, uid, size, delete_candidate, enqueued_at
FROM deleted_blocks
WHERE enqueued_at < ?
ORDER BY id
LIMIT ?
`

type ListDeleteCandidatesParams struct {
	EnqueuedAt int64
	Limit      int64
}

func (q *Queries) ListDeleteCandidates(ctx context.Context, arg ListDeleteCandidatesParams) ([]DeletedBlock, error) {
	rows, err := q.db.QueryContext(ctx, listDeleteCandidates, arg.EnqueuedAt, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DeletedBlock
	for rows.Next() {
		var i DeletedBlock
		if err := rows.Scan(
			&i.ID,
			&i.Uid,
			&i.Size,
			&i.DeleteCandidate,
			&i.EnqueuedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listStats = `-- name: ListStats :many
SELECT version_uid, version_name, created_at, version_size_bytes, version_size_blocks,
       bytes_read, blocks_read, bytes_written, blocks_written,
       bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds
FROM stats
ORDER BY created_at DESC, version_uid DESC
LIMIT ?
`

func (q *Queries) ListStats(ctx context.Context, limit int64) ([]Stat, error) {
	rows, err := q.db.QueryContext(ctx, listStats, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStats(rows)
}

const listStatsByVersion = `-- name: ListStatsByVersion :many
SELECT version_uid, version_name, created_at, version_size_bytes, version_size_blocks,
       bytes_read, blocks_read, bytes_written, blocks_written,
       bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds
FROM stats
WHERE version_uid = ?
ORDER BY created_at DESC
LIMIT ?
`

type ListStatsByVersionParams struct {
	VersionUid string
	Limit      int64
}

func (q *Queries) ListStatsByVersion(ctx context.Context, arg ListStatsByVersionParams) ([]Stat, error) {
	rows, err := q.db.QueryContext(ctx, listStatsByVersion, arg.VersionUid, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStats(rows)
}

func scanStats(rows *sql.Rows) ([]Stat, error) {
	var items []Stat
	for rows.Next() {
		var i Stat
		if err := rows.Scan(
			&i.VersionUid,
			&i.VersionName,
			&i.CreatedAt,
			&i.VersionSizeBytes,
			&i.VersionSizeBlocks,
			&i.BytesRead,
			&i.BlocksRead,
			&i.BytesWritten,
			&i.BlocksWritten,
			&i.BytesDedup,
			&i.BlocksDedup,
			&i.BytesSparse,
			&i.BlocksSparse,
			&i.DurationSeconds,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listVersionUIDsWithValidBlock = `-- name: ListVersionUIDsWithValidBlock :many
SELECT DISTINCT version_uid
FROM blocks
WHERE uid = ? AND checksum = ? AND valid = 1
ORDER BY version_uid
`

type ListVersionUIDsWithValidBlockParams struct {
	Uid      sql.NullString
	Checksum sql.NullString
}

func (q *Queries) ListVersionUIDsWithValidBlock(ctx context.Context, arg ListVersionUIDsWithValidBlockParams) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listVersionUIDsWithValidBlock, arg.Uid, arg.Checksum)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var version_uid string
		if err := rows.Scan(&version_uid); err != nil {
			return nil, err
		}
		items = append(items, version_uid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listVersions = `-- name: ListVersions :many
SELECT uid, name, created_at, size, size_bytes, valid
FROM versions
ORDER BY name, created_at, uid
`

func (q *Queries) ListVersions(ctx context.Context) ([]Version, error) {
	rows, err := q.db.QueryContext(ctx, listVersions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Version
	for rows.Next() {
		var i Version
		if err := rows.Scan(
			&i.Uid,
			&i.Name,
			&i.CreatedAt,
			&i.Size,
			&i.SizeBytes,
			&i.Valid,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateDeleteCandidate = `-- name: UpdateDeleteCandidate :exec
UPDATE deleted_blocks SET delete_candidate = ? WHERE uid = ?
`

type UpdateDeleteCandidateParams struct {
	DeleteCandidate int64
	Uid             string
}

func (q *Queries) UpdateDeleteCandidate(ctx context.Context, arg UpdateDeleteCandidateParams) error {
	_, err := q.db.ExecContext(ctx, updateDeleteCandidate, arg.DeleteCandidate, arg.Uid)
	return err
}

const updateVersionValidity = `-- name: UpdateVersionValidity :execrows
UPDATE versions SET valid = ? WHERE uid = ?
`

type UpdateVersionValidityParams struct {
	Valid int64
	Uid   string
}

func (q *Queries) UpdateVersionValidity(ctx context.Context, arg UpdateVersionValidityParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateVersionValidity, arg.Valid, arg.Uid)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const upsertBlock = `-- name: UpsertBlock :exec
INSERT INTO blocks (version_uid, id, uid, checksum, size, valid, written_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (version_uid, id) DO UPDATE SET
    uid = excluded.uid,
    checksum = excluded.checksum,
    size = excluded.size,
    valid = excluded.valid,
    written_at = excluded.written_at
`

type UpsertBlockParams struct {
	VersionUid string
	ID         int64
	Uid        sql.NullString
	Checksum   sql.NullString
	Size       int64
	Valid      int64
	WrittenAt  time.Time
}

func (q *Queries) UpsertBlock(ctx context.Context, arg UpsertBlockParams) error {
	_, err := q.db.ExecContext(ctx, upsertBlock,
		arg.VersionUid,
		arg.ID,
		arg.Uid,
		arg.Checksum,
		arg.Size,
		arg.Valid,
		arg.WrittenAt,
	)
	return err
}
