package db

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidSchema reports whether name is safe to interpolate into DDL and
// search_path. Organization scoping is enforced by the domain core, so every
// organization shares one schema.
func ValidSchema(name string) bool {
	return schemaPattern.MatchString(name)
}

// EnsureSchema creates schema if needed and applies the migrations in fsys.
// A nil fsys skips migrations.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string, fsys fs.FS) (int, error) {
	if !ValidSchema(schema) {
		return 0, fmt.Errorf("invalid schema identifier: %s", schema)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return 0, fmt.Errorf("create schema %s: %w", schema, err)
	}

	if fsys == nil {
		return 0, nil
	}
	n, err := NewMigrator(pool, fsys).Up(ctx, schema)
	if err != nil {
		return n, fmt.Errorf("run migrations for %s: %w", schema, err)
	}
	return n, nil
}
