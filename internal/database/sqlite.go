package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"bm-go/internal/bm"
	"bm-go/internal/database/migrations"
	"bm-go/internal/database/sqlc"
)

// SQLiteStore implements bm.Store on a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

var _ bm.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path and checks that its schema is
// current. path may be ":memory:", in which case migrations are applied.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	s := NewSQLiteStoreFromDB(db)
	s.path = path

	if path == ":memory:" {
		err = migrations.MigrateUp(db)
	} else {
		err = s.CheckMigrations()
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for its configuration and schema.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		queries: sqlc.New(db),
	}
}

// OpenConnection opens a SQLite connection pool. Connection settings go in
// the DSN so that every pooled connection gets them. An in-memory database
// is limited to a single connection, since each connection would otherwise
// see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if path != ":memory:" {
		params += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	db, err := sql.Open("sqlite3", path+sep+params)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Begin starts a write transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (bm.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &sqliteTx{tx: tx, q: s.queries.WithTx(tx)}, nil
}

// Path returns the database path, or ":memory:".
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the schema is up to date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp applies pending migrations.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo writes a consistent copy of the database to destPath.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// classify maps driver errors onto the bm error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return bm.NewStoreError(op, bm.ErrNotFound, err)
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return bm.NewStoreError(op, bm.ErrConflict, err)
		case sqlite3.ErrConstraint:
			switch serr.ExtendedCode {
			case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
				return bm.NewStoreError(op, bm.ErrAlreadyExists, err)
			case sqlite3.ErrConstraintForeignKey:
				return bm.NewStoreError(op, bm.ErrNotFound, err)
			}
		}
	}
	return bm.NewStoreError(op, bm.ErrStoreUnavailable, err)
}

type sqliteTx struct {
	tx   *sql.Tx
	q    *sqlc.Queries
	done bool
}

func (t *sqliteTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return classify("rollback", err)
	}
	return nil
}

// Versions

func (t *sqliteTx) InsertVersion(ctx context.Context, v *bm.Version) error {
	err := t.q.InsertVersion(ctx, sqlc.InsertVersionParams{
		Uid:       v.UID,
		Name:      v.Name,
		CreatedAt: bm.Stamp(v.CreatedAt),
		Size:      v.Size,
		SizeBytes: v.SizeBytes,
		Valid:     int64(v.Validity),
	})
	if err != nil {
		return classify("insert version", err)
	}
	return nil
}

func (t *sqliteTx) GetVersion(ctx context.Context, uid string) (*bm.Version, error) {
	row, err := t.q.GetVersion(ctx, uid)
	if err != nil {
		return nil, classify("get version", err)
	}
	return versionFromRow(row), nil
}

func (t *sqliteTx) ListVersions(ctx context.Context) ([]*bm.Version, error) {
	rows, err := t.q.ListVersions(ctx)
	if err != nil {
		return nil, classify("list versions", err)
	}
	out := make([]*bm.Version, len(rows))
	for i := range rows {
		out[i] = versionFromRow(rows[i])
	}
	return out, nil
}

func (t *sqliteTx) SetVersionValidity(ctx context.Context, uid string, validity bm.Validity) error {
	n, err := t.q.UpdateVersionValidity(ctx, sqlc.UpdateVersionValidityParams{
		Valid: int64(validity),
		Uid:   uid,
	})
	if err != nil {
		return classify("set version validity", err)
	}
	if n == 0 {
		return bm.NewStoreError("set version validity", bm.ErrNotFound, fmt.Errorf("no version %s", uid))
	}
	return nil
}

func (t *sqliteTx) DeleteVersion(ctx context.Context, uid string) error {
	n, err := t.q.DeleteVersion(ctx, uid)
	if err != nil {
		return classify("delete version", err)
	}
	if n == 0 {
		return bm.NewStoreError("delete version", bm.ErrNotFound, fmt.Errorf("no version %s", uid))
	}
	return nil
}

// Blocks

func (t *sqliteTx) UpsertBlock(ctx context.Context, b *bm.Block) error {
	err := t.q.UpsertBlock(ctx, sqlc.UpsertBlockParams{
		VersionUid: b.VersionUID,
		ID:         b.SeqID,
		Uid:        nullString(b.ContentUID),
		Checksum:   nullString(b.Checksum),
		Size:       b.Size,
		Valid:      int64(b.Validity),
		WrittenAt:  bm.Stamp(b.WrittenAt),
	})
	if err != nil {
		return classify("upsert block", err)
	}
	return nil
}

func (t *sqliteTx) GetBlock(ctx context.Context, versionUID string, seqID int64) (*bm.Block, error) {
	row, err := t.q.GetBlock(ctx, sqlc.GetBlockParams{VersionUid: versionUID, ID: seqID})
	if err != nil {
		return nil, classify("get block", err)
	}
	return blockFromRow(row), nil
}

func (t *sqliteTx) ListBlocks(ctx context.Context, versionUID string) ([]*bm.Block, error) {
	rows, err := t.q.ListBlocksByVersion(ctx, versionUID)
	if err != nil {
		return nil, classify("list blocks", err)
	}
	out := make([]*bm.Block, len(rows))
	for i := range rows {
		out[i] = blockFromRow(rows[i])
	}
	return out, nil
}

func (t *sqliteTx) DeleteBlocks(ctx context.Context, versionUID string) (int64, error) {
	n, err := t.q.DeleteBlocksByVersion(ctx, versionUID)
	if err != nil {
		return 0, classify("delete blocks", err)
	}
	return n, nil
}

func (t *sqliteTx) EnqueueVersionBlocks(ctx context.Context, versionUID string, at time.Time) (int64, error) {
	n, err := t.q.EnqueueVersionBlocks(ctx, sqlc.EnqueueVersionBlocksParams{
		EnqueuedAt: at.Unix(),
		VersionUid: versionUID,
	})
	if err != nil {
		return 0, classify("enqueue version blocks", err)
	}
	return n, nil
}

func (t *sqliteTx) FindValidBlockByChecksum(ctx context.Context, checksum string) (*bm.Block, error) {
	row, err := t.q.GetValidBlockByChecksum(ctx, nullString(checksum))
	if err != nil {
		return nil, classify("find block by checksum", err)
	}
	return blockFromRow(row), nil
}

func (t *sqliteTx) FindBlockByUID(ctx context.Context, contentUID string) (*bm.Block, error) {
	row, err := t.q.GetBlockByUID(ctx, nullString(contentUID))
	if err != nil {
		return nil, classify("find block by uid", err)
	}
	return blockFromRow(row), nil
}

func (t *sqliteTx) ListVersionsWithValidBlock(ctx context.Context, contentUID, checksum string) ([]string, error) {
	uids, err := t.q.ListVersionUIDsWithValidBlock(ctx, sqlc.ListVersionUIDsWithValidBlockParams{
		Uid:      nullString(contentUID),
		Checksum: nullString(checksum),
	})
	if err != nil {
		return nil, classify("list versions with block", err)
	}
	return uids, nil
}

func (t *sqliteTx) InvalidateBlocks(ctx context.Context, contentUID, checksum string) (int64, error) {
	n, err := t.q.InvalidateBlocks(ctx, sqlc.InvalidateBlocksParams{
		Uid:      nullString(contentUID),
		Checksum: nullString(checksum),
	})
	if err != nil {
		return 0, classify("invalidate blocks", err)
	}
	return n, nil
}

func (t *sqliteTx) ListContentUIDs(ctx context.Context, prefix string) ([]string, error) {
	rows, err := t.q.ListContentUIDs(ctx, prefix)
	if err != nil {
		return nil, classify("list content uids", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.String)
	}
	return out, nil
}

// Delete candidates

func (t *sqliteTx) InsertDeletedBlock(ctx context.Context, d *bm.DeletedBlock) error {
	id, err := t.q.InsertDeletedBlock(ctx, sqlc.InsertDeletedBlockParams{
		Uid:             d.ContentUID,
		Size:            d.Size,
		DeleteCandidate: int64(d.Phase),
		EnqueuedAt:      d.EnqueuedAt.Unix(),
	})
	if err != nil {
		return classify("insert deleted block", err)
	}
	d.ID = id
	return nil
}

func (t *sqliteTx) ListDeleteCandidates(ctx context.Context, before time.Time, limit int) ([]*bm.DeletedBlock, error) {
	rows, err := t.q.ListDeleteCandidates(ctx, sqlc.ListDeleteCandidatesParams{
		EnqueuedAt: before.Unix(),
		Limit:      int64(limit),
	})
	if err != nil {
		return nil, classify("list delete candidates", err)
	}
	out := make([]*bm.DeletedBlock, len(rows))
	for i, r := range rows {
		out[i] = &bm.DeletedBlock{
			ID:         r.ID,
			ContentUID: r.Uid,
			Size:       r.Size,
			Phase:      bm.DeletePhase(r.DeleteCandidate),
			EnqueuedAt: time.Unix(r.EnqueuedAt, 0).UTC(),
		}
	}
	return out, nil
}

func (t *sqliteTx) SetDeletePhase(ctx context.Context, contentUID string, phase bm.DeletePhase) error {
	err := t.q.UpdateDeleteCandidate(ctx, sqlc.UpdateDeleteCandidateParams{
		DeleteCandidate: int64(phase),
		Uid:             contentUID,
	})
	if err != nil {
		return classify("set delete phase", err)
	}
	return nil
}

func (t *sqliteTx) DeleteDeletedBlocks(ctx context.Context, contentUID string) (int64, error) {
	n, err := t.q.DeleteDeletedBlocksByUID(ctx, contentUID)
	if err != nil {
		return 0, classify("delete deleted blocks", err)
	}
	return n, nil
}

func (t *sqliteTx) CountDeletedBlocks(ctx context.Context) (map[bm.DeletePhase]int64, error) {
	rows, err := t.q.CountDeletedBlocksByPhase(ctx)
	if err != nil {
		return nil, classify("count deleted blocks", err)
	}
	counts := make(map[bm.DeletePhase]int64, len(rows))
	for _, r := range rows {
		counts[bm.DeletePhase(r.DeleteCandidate)] = r.Count
	}
	return counts, nil
}

// Stats

func (t *sqliteTx) InsertStats(ctx context.Context, s *bm.Stats) error {
	err := t.q.InsertStats(ctx, sqlc.InsertStatsParams{
		VersionUid:        s.VersionUID,
		VersionName:       s.VersionName,
		CreatedAt:         bm.Stamp(s.CreatedAt),
		VersionSizeBytes:  s.VersionSizeBytes,
		VersionSizeBlocks: s.VersionSizeBlocks,
		BytesRead:         s.BytesRead,
		BlocksRead:        s.BlocksRead,
		BytesWritten:      s.BytesWritten,
		BlocksWritten:     s.BlocksWritten,
		BytesDedup:        s.BytesDedup,
		BlocksDedup:       s.BlocksDedup,
		BytesSparse:       s.BytesSparse,
		BlocksSparse:      s.BlocksSparse,
		DurationSeconds:   int64(s.Duration / time.Second),
	})
	if err != nil {
		return classify("insert stats", err)
	}
	return nil
}

func (t *sqliteTx) ListStats(ctx context.Context, versionUID string, limit int) ([]*bm.Stats, error) {
	if limit == 0 {
		return nil, nil
	}
	if limit < 0 {
		limit = -1 // no LIMIT in SQLite
	}

	var (
		rows []sqlc.Stat
		err  error
	)
	if versionUID == "" {
		rows, err = t.q.ListStats(ctx, int64(limit))
	} else {
		rows, err = t.q.ListStatsByVersion(ctx, sqlc.ListStatsByVersionParams{
			VersionUid: versionUID,
			Limit:      int64(limit),
		})
	}
	if err != nil {
		return nil, classify("list stats", err)
	}

	// Rows arrive newest first; callers get them oldest first.
	out := make([]*bm.Stats, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = statsFromRow(r)
	}
	return out, nil
}

func versionFromRow(r sqlc.Version) *bm.Version {
	return &bm.Version{
		UID:       r.Uid,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.UTC(),
		Size:      r.Size,
		SizeBytes: r.SizeBytes,
		Validity:  bm.Validity(r.Valid),
	}
}

func blockFromRow(r sqlc.Block) *bm.Block {
	return &bm.Block{
		VersionUID: r.VersionUid,
		SeqID:      r.ID,
		ContentUID: r.Uid.String,
		Checksum:   r.Checksum.String,
		Size:       r.Size,
		Validity:   bm.Validity(r.Valid),
		WrittenAt:  r.WrittenAt.UTC(),
	}
}

func statsFromRow(r sqlc.Stat) *bm.Stats {
	return &bm.Stats{
		VersionUID:        r.VersionUid,
		VersionName:       r.VersionName,
		CreatedAt:         r.CreatedAt.UTC(),
		VersionSizeBytes:  r.VersionSizeBytes,
		VersionSizeBlocks: r.VersionSizeBlocks,
		BytesRead:         r.BytesRead,
		BlocksRead:        r.BlocksRead,
		BytesWritten:      r.BytesWritten,
		BlocksWritten:     r.BlocksWritten,
		BytesDedup:        r.BytesDedup,
		BlocksDedup:       r.BlocksDedup,
		BytesSparse:       r.BytesSparse,
		BlocksSparse:      r.BlocksSparse,
		Duration:          time.Duration(r.DurationSeconds) * time.Second,
	}
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
