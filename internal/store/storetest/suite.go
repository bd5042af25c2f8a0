// Package storetest holds the compliance suite every store driver runs.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/mycelian-todo/internal/model"
	"github.com/mycelian/mycelian-todo/internal/store"
)

// Run exercises a store.Store implementation. makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("States", func(t *testing.T) { testStates(t, makeStore(t)) })
	t.Run("ReadModifyWrite", func(t *testing.T) { testReadModifyWrite(t, makeStore(t)) })
	t.Run("ReminderPut", func(t *testing.T) { testReminderPut(t, makeStore(t)) })
	t.Run("ReminderLease", func(t *testing.T) { testReminderLease(t, makeStore(t)) })
	t.Run("ReminderRelease", func(t *testing.T) { testReminderRelease(t, makeStore(t)) })
	t.Run("HealthPing", func(t *testing.T) {
		if err := makeStore(t).HealthPing(context.Background()); err != nil {
			t.Fatalf("HealthPing: %v", err)
		}
	})
}

func newKey() string { return "u-" + uuid.New().String() + "@example.test" }

func testStates(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey()

	if _, found, err := s.States().Get(ctx, key, "items"); err != nil || found {
		t.Fatalf("Get absent: found=%v err=%v", found, err)
	}
	if err := s.States().Set(ctx, key, "items", []byte("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.States().Set(ctx, key, "items", []byte("two")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, found, err := s.States().Get(ctx, key, "items")
	if err != nil || !found || string(v) != "two" {
		t.Fatalf("Get: v=%q found=%v err=%v", v, found, err)
	}
	if _, found, _ := s.States().Get(ctx, key, "other"); found {
		t.Fatalf("Get other name: expected absent")
	}
	if _, found, _ := s.States().Get(ctx, newKey(), "items"); found {
		t.Fatalf("Get other key: expected absent")
	}
}

func testReadModifyWrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey()
	appendB := func(cur []byte) ([]byte, error) { return append(cur, 'b'), nil }

	got, err := s.States().ReadModifyWrite(ctx, key, "items", []byte("a"), func([]byte) ([]byte, error) {
		t.Fatalf("update func called for absent state")
		return nil, nil
	})
	if err != nil || string(got) != "a" {
		t.Fatalf("RMW initial: got=%q err=%v", got, err)
	}
	if got, err = s.States().ReadModifyWrite(ctx, key, "items", []byte("a"), appendB); err != nil || string(got) != "ab" {
		t.Fatalf("RMW append: got=%q err=%v", got, err)
	}

	boom := errors.New("boom")
	_, err = s.States().ReadModifyWrite(ctx, key, "items", nil, func([]byte) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("RMW aborted: want boom, got %v", err)
	}
	if errors.Is(err, model.ErrStorageUnavailable) {
		t.Fatalf("RMW aborted: update error reported as storage failure")
	}
	v, _, _ := s.States().Get(ctx, key, "items")
	if string(v) != "ab" {
		t.Fatalf("RMW aborted: state changed to %q", v)
	}
}

func testReminderPut(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey()
	first := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	r := &model.Reminder{EntityKey: key, Name: "SendReminderEmail", DueTime: 10 * time.Second, Period: 24 * time.Hour, NextFireAt: first}

	changed, err := s.Reminders().Put(ctx, r)
	if err != nil || !changed {
		t.Fatalf("Put new: changed=%v err=%v", changed, err)
	}

	again := *r
	again.NextFireAt = first.Add(time.Minute)
	if changed, err = s.Reminders().Put(ctx, &again); err != nil || changed {
		t.Fatalf("Put identical: changed=%v err=%v", changed, err)
	}
	got, err := s.Reminders().Get(ctx, key, r.Name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.NextFireAt.Equal(first) {
		t.Fatalf("Put identical moved NextFireAt: %v -> %v", first, got.NextFireAt)
	}
	if got.DueTime != r.DueTime || got.Period != r.Period || got.OneShot() {
		t.Fatalf("Get: unexpected schedule %+v", got)
	}

	changedPeriod := again
	changedPeriod.Period = time.Hour
	if changed, err = s.Reminders().Put(ctx, &changedPeriod); err != nil || !changed {
		t.Fatalf("Put changed period: changed=%v err=%v", changed, err)
	}
	if got, _ = s.Reminders().Get(ctx, key, r.Name); got.Period != time.Hour || !got.NextFireAt.Equal(again.NextFireAt) {
		t.Fatalf("Put changed period not applied: %+v", got)
	}

	if _, err := s.Reminders().Put(ctx, &model.Reminder{EntityKey: key, Name: "other", NextFireAt: first}); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	lst, err := s.Reminders().List(ctx, key)
	if err != nil || len(lst) != 2 {
		t.Fatalf("List: n=%d err=%v", len(lst), err)
	}
	if n, err := s.Reminders().Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}

	if err := s.Reminders().Delete(ctx, key, "other"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Reminders().Get(ctx, key, "other"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get deleted: want ErrNotFound, got %v", err)
	}
}

func testReminderLease(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	key := newKey()

	periodic := &model.Reminder{EntityKey: key, Name: "periodic", Period: time.Hour, NextFireAt: now.Add(-time.Second)}
	oneShot := &model.Reminder{EntityKey: key, Name: "once", Payload: []byte("p"), NextFireAt: now.Add(-2 * time.Second)}
	future := &model.Reminder{EntityKey: key, Name: "later", NextFireAt: now.Add(time.Hour)}
	for _, r := range []*model.Reminder{periodic, oneShot, future} {
		if _, err := s.Reminders().Put(ctx, r); err != nil {
			t.Fatalf("Put %s: %v", r.Name, err)
		}
	}

	leased, err := s.Reminders().Lease(ctx, "owner-a", now, now.Add(30*time.Second), 10)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(leased) != 2 || leased[0].Name != "once" || leased[1].Name != "periodic" {
		t.Fatalf("Lease: want [once periodic] got %v", names(leased))
	}
	if string(leased[0].Payload) != "p" || leased[0].LeaseOwner != "owner-a" {
		t.Fatalf("Lease: unexpected row %+v", leased[0])
	}

	if again, err := s.Reminders().Lease(ctx, "owner-b", now, now.Add(30*time.Second), 10); err != nil || len(again) != 0 {
		t.Fatalf("Lease held rows: got %v err=%v", names(again), err)
	}

	// Foreign owners cannot move or delete a lease they do not hold.
	if err := s.Reminders().Reschedule(ctx, key, "periodic", "owner-b", now.Add(time.Hour), 0); err != nil {
		t.Fatalf("Reschedule foreign: %v", err)
	}
	if err := s.Reminders().Complete(ctx, key, "once", "owner-b"); err != nil {
		t.Fatalf("Complete foreign: %v", err)
	}
	if _, err := s.Reminders().Get(ctx, key, "once"); err != nil {
		t.Fatalf("Complete foreign deleted row: %v", err)
	}

	next := now.Add(time.Hour)
	if err := s.Reminders().Reschedule(ctx, key, "periodic", "owner-a", next, 3); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	got, _ := s.Reminders().Get(ctx, key, "periodic")
	if !got.NextFireAt.Equal(next) || got.Attempts != 3 || got.LeaseOwner != "" {
		t.Fatalf("Reschedule: unexpected row %+v", got)
	}

	if err := s.Reminders().Complete(ctx, key, "once", "owner-a"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := s.Reminders().Get(ctx, key, "once"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Complete: want ErrNotFound, got %v", err)
	}

	if lim, err := s.Reminders().Lease(ctx, "owner-a", now.Add(2*time.Hour), now.Add(3*time.Hour), 1); err != nil || len(lim) != 1 {
		t.Fatalf("Lease limit: got %v err=%v", names(lim), err)
	}
}

func testReminderRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	key := newKey()

	if _, err := s.Reminders().Put(ctx, &model.Reminder{EntityKey: key, Name: "r", Period: time.Minute, NextFireAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Reminders().Lease(ctx, "crashed", now, now.Add(time.Second), 10); err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if n, err := s.Reminders().ReleaseExpired(ctx, now); err != nil || n != 0 {
		t.Fatalf("ReleaseExpired early: n=%d err=%v", n, err)
	}
	if n, err := s.Reminders().ReleaseExpired(ctx, now.Add(2*time.Second)); err != nil || n != 1 {
		t.Fatalf("ReleaseExpired: n=%d err=%v", n, err)
	}
	leased, err := s.Reminders().Lease(ctx, "fresh", now.Add(2*time.Second), now.Add(time.Minute), 10)
	if err != nil || len(leased) != 1 || leased[0].LeaseOwner != "fresh" {
		t.Fatalf("Lease after release: got %v err=%v", names(leased), err)
	}
}

func names(rs []*model.Reminder) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}
