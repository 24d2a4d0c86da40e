package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bm-go/internal/bm"
	"bm-go/internal/config"
	"bm-go/internal/database/postgres"
)

// NewStoreFromConfig opens the entity store selected by cfg.Type. SQLite
// databases are named after the host.
func NewStoreFromConfig(ctx context.Context, cfg config.DatabaseConfig, hostID string) (bm.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return openSQLite(filepath.Join(cfg.DataDir, hostID+".db"))
	case "memory":
		return openSQLite(":memory:")
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:         cfg.DSN,
			MaxConns:    cfg.MaxConns,
			AutoMigrate: cfg.AutoMigrate,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Migrate brings the configured store's schema up to date.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, hostID string) error {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		db, err := OpenConnection(filepath.Join(cfg.DataDir, hostID+".db"))
		if err != nil {
			return err
		}
		defer db.Close()
		return NewSQLiteStoreFromDB(db).MigrateUp()
	case "memory":
		return nil
	case "postgres":
		return postgres.Migrate(ctx, cfg.DSN)
	default:
		return fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func openSQLite(path string) (bm.Store, error) {
	s, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
