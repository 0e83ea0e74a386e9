// Package db ships the SQL migrations with the binary.
package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// UpMigrations returns the *.up.sql file names in apply order.
func UpMigrations() ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*_*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every up migration. Migrations are idempotent, so re-running is safe.
func Apply(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	names, err := UpMigrations()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no migration files found")
	}
	applied := make([]string, 0, len(names))
	for _, name := range names {
		payload, err := migrations.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(payload)); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		applied = append(applied, strings.TrimPrefix(name, "migrations/"))
	}
	return applied, nil
}
