// Package memory provides an in-process store.Store used for tests and the "memory" driver.
// Nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mycelian/mycelian-todo/internal/model"
	"github.com/mycelian/mycelian-todo/internal/store"
)

var _ store.Store = (*Store)(nil)

type rowKey struct{ key, name string }

// Store keeps entity state and reminders in maps guarded by one mutex.
type Store struct {
	mu        sync.Mutex
	states    map[rowKey][]byte
	reminders map[rowKey]*model.Reminder
	failErr   error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		states:    make(map[rowKey][]byte),
		reminders: make(map[rowKey]*model.Reminder),
	}
}

func (s *Store) States() store.States       { return &states{s} }
func (s *Store) Reminders() store.Reminders { return &reminders{s} }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faultLocked("ping")
}

func (s *Store) Close() error { return nil }

// FailWith makes every later call fail with a storage error wrapping err; nil restores service.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *Store) faultLocked(op string) error {
	if s.failErr == nil {
		return nil
	}
	return &model.StorageError{Op: op, Err: s.failErr}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneReminder(r *model.Reminder) *model.Reminder {
	out := *r
	out.Payload = clone(r.Payload)
	return &out
}

// --- States ---

type states struct{ s *Store }

func (st *states) Get(ctx context.Context, key, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.s.faultLocked("get state"); err != nil {
		return nil, false, err
	}
	v, ok := st.s.states[rowKey{key, name}]
	return clone(v), ok, nil
}

func (st *states) Set(ctx context.Context, key, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.s.faultLocked("set state"); err != nil {
		return err
	}
	st.s.states[rowKey{key, name}] = clone(value)
	return nil
}

func (st *states) ReadModifyWrite(ctx context.Context, key, name string, initial []byte, fn store.UpdateFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.s.faultLocked("read-modify-write"); err != nil {
		return nil, err
	}

	k := rowKey{key, name}
	next := initial
	if cur, ok := st.s.states[k]; ok {
		var err error
		if next, err = fn(clone(cur)); err != nil {
			return nil, err
		}
	}
	st.s.states[k] = clone(next)
	return clone(next), nil
}

// --- Reminders ---

type reminders struct{ s *Store }

func (rs *reminders) Put(ctx context.Context, r *model.Reminder) (bool, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("put reminder"); err != nil {
		return false, err
	}
	k := rowKey{r.EntityKey, r.Name}
	if cur, ok := rs.s.reminders[k]; ok && cur.SameSchedule(r) {
		return false, nil
	}
	n := cloneReminder(r)
	n.Attempts = 0
	n.LeaseOwner = ""
	n.LeaseUntil = time.Time{}
	rs.s.reminders[k] = n
	return true, nil
}

func (rs *reminders) Get(ctx context.Context, key, name string) (*model.Reminder, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("get reminder"); err != nil {
		return nil, err
	}
	r, ok := rs.s.reminders[rowKey{key, name}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneReminder(r), nil
}

func (rs *reminders) List(ctx context.Context, key string) ([]*model.Reminder, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("list reminders"); err != nil {
		return nil, err
	}
	var out []*model.Reminder
	for k, r := range rs.s.reminders {
		if k.key == key {
			out = append(out, cloneReminder(r))
		}
	}
	slices.SortFunc(out, func(a, b *model.Reminder) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

func (rs *reminders) Delete(ctx context.Context, key, name string) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("delete reminder"); err != nil {
		return err
	}
	delete(rs.s.reminders, rowKey{key, name})
	return nil
}

func (rs *reminders) Lease(ctx context.Context, owner string, now, until time.Time, limit int) ([]*model.Reminder, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("lease reminders"); err != nil {
		return nil, err
	}
	var ready []*model.Reminder
	for _, r := range rs.s.reminders {
		if r.NextFireAt.After(now) {
			continue
		}
		if r.LeaseOwner != "" && r.LeaseUntil.After(now) {
			continue
		}
		ready = append(ready, r)
	}
	slices.SortFunc(ready, func(a, b *model.Reminder) int { return a.NextFireAt.Compare(b.NextFireAt) })
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	out := make([]*model.Reminder, 0, len(ready))
	for _, r := range ready {
		r.LeaseOwner = owner
		r.LeaseUntil = until
		out = append(out, cloneReminder(r))
	}
	return out, nil
}

func (rs *reminders) Reschedule(ctx context.Context, key, name, owner string, next time.Time, attempts int) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("reschedule reminder"); err != nil {
		return err
	}
	r, ok := rs.s.reminders[rowKey{key, name}]
	if !ok || r.LeaseOwner != owner {
		return nil
	}
	r.NextFireAt = next
	r.Attempts = attempts
	r.LeaseOwner = ""
	r.LeaseUntil = time.Time{}
	return nil
}

func (rs *reminders) Complete(ctx context.Context, key, name, owner string) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("complete reminder"); err != nil {
		return err
	}
	k := rowKey{key, name}
	if r, ok := rs.s.reminders[k]; ok && r.LeaseOwner == owner {
		delete(rs.s.reminders, k)
	}
	return nil
}

func (rs *reminders) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("release leases"); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rs.s.reminders {
		if r.LeaseOwner != "" && !r.LeaseUntil.After(now) {
			r.LeaseOwner = ""
			r.LeaseUntil = time.Time{}
			n++
		}
	}
	return n, nil
}

func (rs *reminders) Count(ctx context.Context) (int, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if err := rs.s.faultLocked("count reminders"); err != nil {
		return 0, err
	}
	return len(rs.s.reminders), nil
}
