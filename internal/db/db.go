package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Dialect names the SQL flavour behind a *sql.DB. Values double as goose dialect names.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Open connects to the store named by databaseURL. postgres:// and postgresql://
// URLs use lib/pq; sqlite:// URLs (sqlite://app.db, sqlite://:memory:) use modernc sqlite.
func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, "", fmt.Errorf("DATABASE_URL is empty")
	}

	// sqlite URLs are matched before url.Parse, which rejects hosts like ":memory:".
	if IsSQLiteURL(databaseURL) {
		database, err := openSQLite(ctx, sqlitePath(databaseURL))
		return database, DialectSQLite, err
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		database, err := openPostgres(ctx, databaseURL, u)
		return database, DialectPostgres, err
	default:
		return nil, "", fmt.Errorf("unsupported DATABASE_URL scheme %q", u.Scheme)
	}
}

// IsSQLiteURL reports whether databaseURL selects the sqlite driver.
func IsSQLiteURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "sqlite:") || strings.HasPrefix(databaseURL, "sqlite3:")
}

// Rebind rewrites $N placeholders for the dialect. Queries are written Postgres-style
// and must use each placeholder once, in ascending order, since SQLite gets plain "?".
func (d Dialect) Rebind(query string) string {
	if d != DialectSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique/primary key constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
