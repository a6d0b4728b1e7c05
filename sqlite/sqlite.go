// Package sqlite provides the single-host frontier and the page record
// store on SQLite via github.com/ncruces/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is a SQLite handle shared by the frontier and the record store.
// It holds a single connection; SQLite serializes writers anyway.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB returns an unopened DB for path. Pass MemoryPath for a
// throwaway database.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// Open connects, applies pragmas and migrates the schema.
func (db *DB) Open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", db.path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := db.setup(conn); err != nil {
		conn.Close()
		return err
	}
	db.db = conn
	return nil
}

func (db *DB) setup(conn *sql.DB) error {
	if err := conn.Ping(); err != nil {
		return fmt.Errorf("connect sqlite %s: %w", db.path, err)
	}

	// Several crawler processes may share one file.
	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if db.path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection. Closing an unopened DB is a no-op.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Ping reports whether the database still answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction with default isolation.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

// schema is applied in order on every Open; each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
		url        TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		depth      INTEGER NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_state_depth ON urls(state, depth)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id           TEXT PRIMARY KEY,
		url          TEXT NOT NULL UNIQUE,
		title        TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL DEFAULT '',
		meta         TEXT NOT NULL DEFAULT '{}',
		images       TEXT NOT NULL DEFAULT '[]',
		links        TEXT NOT NULL DEFAULT '[]',
		content_hash TEXT NOT NULL DEFAULT '',
		depth        INTEGER NOT NULL DEFAULT 0,
		fetched_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_content_hash ON pages(content_hash)`,
}
