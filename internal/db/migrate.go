package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/authflow/server/internal/db/migrations"
)

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

func withGoose(dialect Dialect, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn()
}

// Migrate applies all pending embedded migrations.
func Migrate(database *sql.DB, dialect Dialect) error {
	return withGoose(dialect, func() error {
		if err := goose.Up(database, "."); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(database *sql.DB, dialect Dialect) error {
	return withGoose(dialect, func() error {
		if err := goose.Down(database, "."); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return nil
	})
}

// MigrationStatus prints applied/pending migrations through goose's logger.
func MigrationStatus(database *sql.DB, dialect Dialect) error {
	return withGoose(dialect, func() error {
		if err := goose.Status(database, "."); err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		return nil
	})
}

// Version returns the current schema version.
func Version(database *sql.DB, dialect Dialect) (int64, error) {
	var version int64
	err := withGoose(dialect, func() error {
		v, err := goose.GetDBVersion(database)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// Truncate removes all rows from the auth tables. Used by tests and local resets.
func Truncate(ctx context.Context, database *sql.DB) error {
	for _, table := range []string{"email_verification_codes", "users"} {
		if _, err := database.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
