package chatbridge

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// MigrationFiles contains all SQL migration files embedded in the binary.
// Users can access these files programmatically to apply migrations using
// their preferred migration tool (goose, golang-migrate, atlas, etc.)
//
// Example with goose:
//
//	import (
//	    "github.com/pressly/goose/v3"
//	    chatbridge "github.com/coregx/chatbridge"
//	)
//
//	goose.SetBaseFS(chatbridge.MigrationFiles)
//	if err := goose.Up(db, "migrations"); err != nil {
//	    log.Fatal(err)
//	}
//
// The files use the portable subset of MySQL, PostgreSQL and SQLite DDL and can
// also be applied with ApplyMigrations.
//
//go:embed migrations/*.sql
var MigrationFiles embed.FS

const migrationsTable = "chat_schema_migrations"

// ApplyMigrations applies every embedded migration that was not applied yet,
// in file name order. Applied versions are recorded in chat_schema_migrations.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS "+migrationsTable+" (version INTEGER NOT NULL PRIMARY KEY)"); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to create migrations table", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM "+migrationsTable)
	if err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to read applied migrations", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return NewErrorWithCause(ErrCodeDatabase, "failed to read applied migrations", err)
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to read applied migrations", err)
	}

	names, err := fs.Glob(MigrationFiles, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}

		body, err := fs.ReadFile(MigrationFiles, name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return NewErrorWithCause(ErrCodeDatabase, fmt.Sprintf("migration %s failed", name), err)
			}
		}
		if _, err := db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (version) VALUES (%d)", migrationsTable, version)); err != nil {
			return NewErrorWithCause(ErrCodeDatabase, fmt.Sprintf("failed to record migration %s", name), err)
		}
	}
	return nil
}

// migrationVersion parses the numeric prefix of "migrations/001_name.sql".
func migrationVersion(name string) (int, error) {
	base := strings.TrimPrefix(name, "migrations/")
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s has no version prefix", name)
	}
	return strconv.Atoi(prefix)
}
