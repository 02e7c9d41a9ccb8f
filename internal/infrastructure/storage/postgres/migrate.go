package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"ordertx/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const gooseDownMarker = "-- +goose Down"

// Migration is one goose-format SQL file.
type Migration struct {
	Version string
	Up      string
}

// LoadMigrations returns the embedded migrations ordered by version.
func LoadMigrations() ([]Migration, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		raw, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql"),
			Up:      upSection(string(raw)),
		})
	}
	return out, nil
}

// upSection returns the statements before the goose Down marker.
func upSection(src string) string {
	if i := strings.Index(src, gooseDownMarker); i >= 0 {
		src = src[:i]
	}
	return strings.TrimSpace(src)
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction. The files stay goose
// compatible, so `goose -dir migrations up` works against the same database.
func Migrate(ctx context.Context, pool *Pool) error {
	migrations, err := LoadMigrations()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		err := pgx.BeginFunc(ctx, pool, func(t pgx.Tx) error {
			tag, err := t.Exec(ctx,
				"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.Version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := t.Exec(ctx, m.Up); err != nil {
				return err
			}
			logger.Info(ctx, "migration applied", "version", m.Version)
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}
