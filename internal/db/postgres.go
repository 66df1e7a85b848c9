package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// redactDSN returns a copy of the DSN with password replaced by **** for logging.
func redactDSN(u *url.URL) string {
	masked := *u
	if masked.User != nil {
		masked.User = url.UserPassword(masked.User.Username(), "****")
	}
	return masked.String()
}

// extractDBName returns the database name from URL path ("/authflow" -> "authflow").
func extractDBName(u *url.URL) string {
	if u == nil {
		return ""
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if idx := strings.Index(dbName, "?"); idx >= 0 {
		dbName = dbName[:idx]
	}
	return strings.TrimSpace(dbName)
}

func isDatabaseDoesNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database") && strings.Contains(msg, "does not exist")
}

// openPostgres establishes a connection to PostgreSQL and configures the connection pool.
func openPostgres(ctx context.Context, databaseURL string, u *url.URL) (*sql.DB, error) {
	dbName := extractDBName(u)
	host := u.Hostname()
	port := u.Port()
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}

	slog.Info("DB connect target", "host", host, "port", port, "db", dbName, "dsn", redactDSN(u))

	// Precheck against the maintenance DB so a wrong database name gets a clear message.
	if dbName != "" {
		precheckDatabase(ctx, u, dbName)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()

		if isDatabaseDoesNotExist(err) {
			return nil, fmt.Errorf("database %q not found on host=%s port=%s: %w", dbName, host, port, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func precheckDatabase(ctx context.Context, u *url.URL, dbName string) {
	maintenanceURL := *u
	maintenanceURL.Path = "/postgres"
	maintenanceURL.RawPath = ""

	maintDB, err := sql.Open("postgres", maintenanceURL.String())
	if err != nil {
		slog.Warn("DB precheck: could not open maintenance connection", "error", err)
		return
	}
	defer maintDB.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var found string
	rowErr := maintDB.QueryRowContext(checkCtx,
		"SELECT datname FROM pg_database WHERE datname = $1",
		dbName,
	).Scan(&found)

	switch {
	case rowErr == nil:
		slog.Info("DB precheck: database exists", "db", found)
	case errors.Is(rowErr, sql.ErrNoRows):
		slog.Warn("DB precheck: database not found on this instance", "db", dbName)
	default:
		slog.Warn("DB precheck: could not query pg_database", "error", rowErr)
	}
}
