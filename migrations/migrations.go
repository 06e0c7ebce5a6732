// Package migrations holds the embedded goose migrations for the exact-tier
// schema. The "Jobs" table is range partitioned on target_timestamp and has no
// default partition; daily partitions are created by the partition manager.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// NewProvider returns a goose provider over the embedded migrations.
func NewProvider(db *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration provider")
	}
	return provider, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	provider, err := NewProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	for _, r := range results {
		logger.Info("Migration applied",
			slog.Int64("version", r.Source.Version),
			slog.String("file", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	if len(results) == 0 {
		logger.Info("Schema is up to date")
	}
	return nil
}

// Status reports the state of every embedded migration.
func Status(ctx context.Context, db *sql.DB) ([]*goose.MigrationStatus, error) {
	provider, err := NewProvider(db)
	if err != nil {
		return nil, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration status")
	}
	return statuses, nil
}
