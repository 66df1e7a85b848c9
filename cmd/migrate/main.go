package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/authflow/server/internal/db"
)

type options struct {
	envFile     string
	databaseURL string
	timeout     time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Database migration tooling",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "database URL (defaults to DATABASE_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")

	cmd.AddCommand(
		newUpCommand(opts),
		newDownCommand(opts),
		newStatusCommand(opts),
		newResetCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), opts, func(_ context.Context, database *sql.DB, dialect db.Dialect) error {
				if err := db.Migrate(database, dialect); err != nil {
					return err
				}
				return printVersion(cmd, database, dialect)
			})
		},
	}
}

func newDownCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), opts, func(_ context.Context, database *sql.DB, dialect db.Dialect) error {
				if err := db.MigrateDown(database, dialect); err != nil {
					return err
				}
				return printVersion(cmd, database, dialect)
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), opts, func(_ context.Context, database *sql.DB, dialect db.Dialect) error {
				if err := db.MigrationStatus(database, dialect); err != nil {
					return err
				}
				return printVersion(cmd, database, dialect)
			})
		},
	}
}

func newResetCommand(opts *options) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all users and verification codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to delete data without --yes")
			}
			return withDB(cmd.Context(), opts, func(ctx context.Context, database *sql.DB, _ db.Dialect) error {
				if err := db.Truncate(ctx, database); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "auth tables emptied")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion")
	return cmd
}

func withDB(parent context.Context, opts *options, fn func(context.Context, *sql.DB, db.Dialect) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	databaseURL, err := resolveDatabaseURL(opts)
	if err != nil {
		return err
	}
	database, dialect, err := db.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(ctx, database, dialect)
}

func resolveDatabaseURL(opts *options) (string, error) {
	if url := strings.TrimSpace(opts.databaseURL); url != "" {
		return url, nil
	}
	if opts.envFile != "" {
		// a missing env file is fine, the variable may come from the environment
		_ = godotenv.Load(opts.envFile)
	}
	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	return url, nil
}

func printVersion(cmd *cobra.Command, database *sql.DB, dialect db.Dialect) error {
	version, err := db.Version(database, dialect)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
