package store

import (
	"context"
	"time"

	"github.com/mycelian/mycelian-todo/internal/model"
)

// Store exposes the durable persistence used by the entity runtime and the reminder scheduler.
// Implementations live under internal/store/<driver>/ (sqlite, postgres, memory).
type Store interface {
	States() States
	Reminders() Reminders
	HealthPing(ctx context.Context) error
	Close() error
}

// UpdateFunc transforms the current value of a state into the next one.
// Returning an error aborts the write and is passed back to the caller unchanged.
type UpdateFunc func(current []byte) ([]byte, error)

// States is per-entity key/value state addressed by (entity key, state name).
type States interface {
	Get(ctx context.Context, key, name string) (value []byte, found bool, err error)
	Set(ctx context.Context, key, name string, value []byte) error
	// ReadModifyWrite stores initial when the state is absent, otherwise stores fn(current).
	// The write is atomic and durable before it returns.
	ReadModifyWrite(ctx context.Context, key, name string, initial []byte, fn UpdateFunc) ([]byte, error)
}

// Reminders is the persisted schedule table, keyed by (entity key, name).
type Reminders interface {
	// Put inserts r or replaces a stored reminder whose due time, period or payload differ.
	// An identical stored reminder is left untouched and Put reports changed=false.
	Put(ctx context.Context, r *model.Reminder) (changed bool, err error)
	Get(ctx context.Context, key, name string) (*model.Reminder, error)
	List(ctx context.Context, key string) ([]*model.Reminder, error)
	Delete(ctx context.Context, key, name string) error

	// Lease claims up to limit reminders due at now whose lease is free or expired.
	Lease(ctx context.Context, owner string, now, until time.Time, limit int) ([]*model.Reminder, error)
	// Reschedule releases owner's lease and moves the reminder to next.
	Reschedule(ctx context.Context, key, name, owner string, next time.Time, attempts int) error
	// Complete deletes a one-shot reminder still leased by owner.
	Complete(ctx context.Context, key, name, owner string) error
	// ReleaseExpired clears leases that ended before now.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
