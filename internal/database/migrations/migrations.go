package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var sqliteFiles embed.FS

//go:embed postgres/*.sql
var postgresFiles embed.FS

// Dialect selects the migration set and database driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// MigrateUp brings a SQLite database to the latest schema version.
func MigrateUp(db *sql.DB) error {
	return Up(db, SQLite)
}

// CheckDBMigrationStatus verifies that a SQLite database is at the latest
// schema version.
func CheckDBMigrationStatus(db *sql.DB) error {
	return Check(db, SQLite)
}

// Up runs all pending migrations for the dialect. Running it on an
// up-to-date database is a no-op.
func Up(db *sql.DB, dialect Dialect) error {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: that would close db, which the caller owns.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Check returns nil if the database is at the latest version and an error
// describing the mismatch otherwise.
func Check(db *sql.DB, dialect Dialect) error {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	src, err := sourceFor(dialect)
	if err != nil {
		return err
	}
	defer src.Close()

	latest, err := latestVersion(src)
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}

	switch {
	case version < latest:
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latest, latest-version)
	case version > latest:
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			version, latest)
	}
	return nil
}

func sourceFor(dialect Dialect) (source.Driver, error) {
	var (
		src source.Driver
		err error
	)
	switch dialect {
	case SQLite:
		src, err = iofs.New(sqliteFiles, "files")
	case Postgres:
		src, err = iofs.New(postgresFiles, "postgres")
	default:
		return nil, fmt.Errorf("unknown migration dialect: %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}
	return src, nil
}

func newMigrate(db *sql.DB, dialect Dialect) (*migrate.Migrate, error) {
	src, err := sourceFor(dialect)
	if err != nil {
		return nil, err
	}

	var driver database.Driver
	switch dialect {
	case SQLite:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case Postgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	}
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// latestVersion walks the source to its last migration.
func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			// Next fails once there are no further migrations.
			return version, nil
		}
		version = next
	}
}
