// Package sqlstore implements store.Store on database/sql. The sqlite and postgres
// packages supply a Dialect and an opened *sql.DB.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/mycelian/mycelian-todo/internal/store"
)

// errConflict reports a lost race on first insert; it is always retried.
var errConflict = errors.New("sqlstore: concurrent insert")

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// LockSuffix is appended to SELECTs that read rows about to be updated.
	LockSuffix string
	// SkipLockedSuffix is appended to the lease SELECT.
	SkipLockedSuffix string
	// Schema is executed statement by statement by EnsureSchema.
	Schema []string
	// Transient reports driver errors worth retrying.
	Transient func(error) bool
}

func (d Dialect) rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) transient(err error) bool {
	if errors.Is(err, errConflict) {
		return true
	}
	return d.Transient != nil && d.Transient(err)
}

// Store is a database/sql backed store.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	retry   store.RetryPolicy
}

var _ store.Store = (*Store)(nil)

// New wraps db. The schema must already exist; see EnsureSchema.
func New(db *sql.DB, d Dialect, p store.RetryPolicy) *Store {
	return &Store{db: db, dialect: d, retry: p}
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return pkgerrors.Wrapf(err, "%s schema", d.Name)
		}
	}
	return nil
}

func (s *Store) States() store.States       { return &states{s} }
func (s *Store) Reminders() store.Reminders { return &reminders{s} }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) do(ctx context.Context, op string, fn func() error) error {
	return store.Retry(ctx, s.retry, op, s.dialect.transient, fn)
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
