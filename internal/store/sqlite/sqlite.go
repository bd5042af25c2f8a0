// Package sqlite is the local store driver, backed by modernc.org/sqlite (pure Go).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mycelian/mycelian-todo/internal/store"
	"github.com/mycelian/mycelian-todo/internal/store/sqlstore"
)

// Dialect describes SQLite to sqlstore.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS entity_state (
			entity_key  TEXT    NOT NULL,
			state_name  TEXT    NOT NULL,
			value       BLOB    NOT NULL,
			version     INTEGER NOT NULL DEFAULT 1,
			update_time INTEGER NOT NULL,
			PRIMARY KEY (entity_key, state_name)
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			entity_key    TEXT    NOT NULL,
			name          TEXT    NOT NULL,
			due_ns        INTEGER NOT NULL,
			period_ns     INTEGER NOT NULL,
			payload       BLOB    NOT NULL,
			next_fire_at  INTEGER NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			lease_owner   TEXT    NOT NULL DEFAULT '',
			lease_until   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_key, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_next_fire ON reminders (next_fire_at)`,
	},
	Transient: isTransient,
}

// Open opens (or creates) a SQLite database at path with WAL journaling.
func Open(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; transactions on a shared connection would interleave otherwise.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens path, creates the schema and returns the store.
func New(ctx context.Context, path string, p store.RetryPolicy) (*sqlstore.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open sqlite %s", path)
	}
	if err := sqlstore.EnsureSchema(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, Dialect, p), nil
}

func isTransient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}
