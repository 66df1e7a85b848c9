// Package tests holds end-to-end tests that drive the HTTP API against a real
// store: Postgres when DATABASE_URL is set, in-memory SQLite otherwise.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/authflow/server/internal/db"
)

// MemoryDatabaseURL is used when DATABASE_URL is not set.
const MemoryDatabaseURL = "sqlite://:memory:"

// DatabaseURL returns DATABASE_URL, falling back to an in-memory SQLite store.
func DatabaseURL() string {
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		return url
	}
	return MemoryDatabaseURL
}

// OpenMigrated opens the database and applies the embedded migrations.
func OpenMigrated(ctx context.Context, databaseURL string) (*sql.DB, db.Dialect, error) {
	database, dialect, err := db.Open(ctx, databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open: %w", err)
	}
	if err := db.Migrate(database, dialect); err != nil {
		database.Close()
		return nil, "", fmt.Errorf("migrate: %w", err)
	}
	return database, dialect, nil
}

// TruncateAuthTables empties auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, database *sql.DB) error {
	if err := db.Truncate(ctx, database); err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
