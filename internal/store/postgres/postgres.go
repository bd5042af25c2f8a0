// Package postgres is the cloud store driver, backed by pgx through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	pkgerrors "github.com/pkg/errors"

	"github.com/mycelian/mycelian-todo/internal/store"
	"github.com/mycelian/mycelian-todo/internal/store/sqlstore"
)

// Dialect describes PostgreSQL to sqlstore.
var Dialect = sqlstore.Dialect{
	Name:             "postgres",
	Numbered:         true,
	LockSuffix:       " FOR UPDATE",
	SkipLockedSuffix: " FOR UPDATE SKIP LOCKED",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS entity_state (
			entity_key  TEXT   NOT NULL,
			state_name  TEXT   NOT NULL,
			value       BYTEA  NOT NULL,
			version     BIGINT NOT NULL DEFAULT 1,
			update_time BIGINT NOT NULL,
			PRIMARY KEY (entity_key, state_name)
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			entity_key    TEXT   NOT NULL,
			name          TEXT   NOT NULL,
			due_ns        BIGINT NOT NULL,
			period_ns     BIGINT NOT NULL,
			payload       BYTEA  NOT NULL,
			next_fire_at  BIGINT NOT NULL,
			attempt_count INT    NOT NULL DEFAULT 0,
			lease_owner   TEXT   NOT NULL DEFAULT '',
			lease_until   BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_key, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_next_fire ON reminders (next_fire_at)`,
	},
	Transient: isTransient,
}

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New connects, creates the schema and returns the store.
func New(ctx context.Context, dsn string, p store.RetryPolicy) (*sqlstore.Store, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open postgres")
	}
	if err := sqlstore.EnsureSchema(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, Dialect, p), nil
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01", "57P03":
			return true
		}
		// class 08: connection exception
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
