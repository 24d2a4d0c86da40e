// Package postgres implements the entity store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bm-go/internal/bm"
)

// Config configures the connection pool.
type Config struct {
	DSN         string
	MaxConns    int32
	AutoMigrate bool
}

// Store implements bm.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ bm.Store = (*Store)(nil)

// New connects to PostgreSQL, optionally runs migrations, and verifies the
// connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, cfg.DSN); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, mapPgError(err, "ping")
	}

	if !cfg.AutoMigrate {
		if err := CheckMigrations(ctx, cfg.DSN); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Store{pool: pool}, nil
}

// Begin starts a repeatable-read transaction. Concurrent writers touching
// the same rows fail with bm.ErrConflict and may retry.
func (s *Store) Begin(ctx context.Context) (bm.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, mapPgError(err, "begin")
	}
	return &pgTx{tx: tx, ctx: ctx}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
