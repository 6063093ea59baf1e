// Package migrate applies embedded, additive SQL migrations and records them
// in a schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

// Dialect describes how a backend stores migration bookkeeping.
type Dialect struct {
	Name string
	// CreateTable creates schema_migrations if missing.
	CreateTable string
	// Insert records a version; it takes the version and the applied time.
	Insert string
	// SplitStatements executes a file one statement at a time, for drivers
	// that reject multi-statement Exec.
	SplitStatements bool
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		CreateTable: `CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(255) PRIMARY KEY, applied_at TIMESTAMPTZ DEFAULT NOW())`,
		Insert:      `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
	}
	SQLite = Dialect{
		Name:            "sqlite",
		CreateTable:     `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP)`,
		Insert:          `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		SplitStatements: true,
	}
	// MySQL cannot index TEXT without a prefix length.
	MySQL = Dialect{
		Name:            "mysql",
		CreateTable:     `CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(191) PRIMARY KEY, applied_at TIMESTAMP NULL)`,
		Insert:          `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		SplitStatements: true,
	}
)

// Applied returns the applied versions in order.
func Applied(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}

// Pending returns the .sql files in dir that are not in applied, sorted by name.
func Pending(fsys fs.FS, dir string, applied []string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// SplitStatements splits a migration file on semicolons, dropping empty statements.
func SplitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Apply runs every pending migration in dir, each in its own transaction.
func Apply(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, d Dialect) error {
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	applied, err := Applied(ctx, db)
	if err != nil {
		return err
	}
	files, err := Pending(fsys, dir, applied)
	if err != nil {
		return err
	}

	for _, file := range files {
		content, err := fs.ReadFile(fsys, path.Join(dir, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := applyOne(ctx, db, d, file, string(content)); err != nil {
			return err
		}
		slog.Debug("applied migration", "driver", d.Name, "version", file)
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, d Dialect, file, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}
	defer tx.Rollback()

	stmts := []string{content}
	if d.SplitStatements {
		stmts = SplitStatements(content)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	if _, err := tx.ExecContext(ctx, d.Insert, file, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}
