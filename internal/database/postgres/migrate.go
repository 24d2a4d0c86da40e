package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"bm-go/internal/database/migrations"
)

// Migrate applies pending schema migrations. golang-migrate takes an
// advisory lock, so concurrent callers are serialized.
func Migrate(ctx context.Context, dsn string) error {
	db, err := openSQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Up(db, migrations.Postgres); err != nil {
		return fmt.Errorf("migrating postgres: %w", err)
	}
	return nil
}

// CheckMigrations verifies that the schema is at the latest version.
func CheckMigrations(ctx context.Context, dsn string) error {
	db, err := openSQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return migrations.Check(db, migrations.Postgres)
}

func openSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
