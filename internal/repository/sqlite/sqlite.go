// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// It backs the local server and the repository tests. The deployed system
// uses the dynamo package; both enforce the same uniqueness rules, here
// through UNIQUE/PRIMARY KEY constraints and ON CONFLICT DO NOTHING.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      - a connection pool (NOT a single connection!)
//   - sql.Row     - a single result row
//   - sql.Rows    - multiple result rows (must be closed!)
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/flycalcio/guestapp/internal/repository"
)

// compile-time check that *DB implements every repository interface
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/guestapp.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite has one writer at a time anyway. A single connection also means
	// the pragmas below apply to every query, and that ":memory:" is one
	// database rather than one per pooled connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is happening.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Deleting an event relies on
	// them to cascade to its assignments.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	// users.email is UNIQUE: CreateUser relies on it for race-safe
	// registration.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'USER',
			provider      TEXT NOT NULL DEFAULT 'password',
			confirmed     INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			date       TEXT NOT NULL,
			location   TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
	`)
	if err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	// The composite primary key is the "one assignment per (user, event)"
	// rule.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS assignments (
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			event_id    TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			status      TEXT NOT NULL DEFAULT 'CONFIRMED',
			assigned_by TEXT NOT NULL DEFAULT '',
			assigned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, event_id)
		);
		CREATE INDEX IF NOT EXISTS idx_assignments_event_id ON assignments(event_id);
	`)
	if err != nil {
		return fmt.Errorf("creating assignments table: %w", err)
	}

	return nil
}
