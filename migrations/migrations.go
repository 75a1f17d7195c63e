// Package migrations embeds the goose schema migrations for both storage
// backends and applies them.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialects supported by Up.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// FS returns the migration files of one dialect.
func FS(dialect string) (fs.FS, error) {
	switch dialect {
	case Postgres, SQLite:
		return fs.Sub(files, dialect)
	}
	return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
}

// Up applies every pending migration of dialect to db and returns the
// versions applied.
func Up(ctx context.Context, db *sql.DB, dialect string) ([]int64, error) {
	fsys, err := FS(dialect)
	if err != nil {
		return nil, err
	}

	gd := goose.DialectPostgres
	if dialect == SQLite {
		gd = goose.DialectSQLite3
	}

	// NewProvider parses $$-delimited bodies correctly, unlike the legacy goose.Up.
	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}
