// Package todo hosts the todo-list entity: one activation per owner key, holding an
// append-only list of items in the "items" state and a daily "SendReminderEmail" reminder.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/actor"
	"github.com/mycelian/mycelian-todo/internal/model"
	"github.com/mycelian/mycelian-todo/internal/store"
)

const (
	// Kind labels the todo directory in logs and metrics.
	Kind = "todo-list"
	// ItemsState is the state name holding the JSON-encoded item list.
	ItemsState = "items"
	// ReminderName is the periodic reminder every list registers on activation.
	ReminderName = "SendReminderEmail"
)

var (
	notificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "todo",
		Name:      "notifications_total",
		Help:      "Reminder notifications sent.",
	})
	notificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "todo",
		Name:      "notifications_failed_total",
		Help:      "Reminder notifications that failed; state is never affected.",
	})
)

// Registrar persists reminders. *reminder.Scheduler implements it.
type Registrar interface {
	Register(ctx context.Context, r model.Reminder) error
}

// Deps are shared by every list activation.
type Deps struct {
	States         store.States
	Reminders      Registrar
	Notifier       Notifier
	ReminderDue    time.Duration
	ReminderPeriod time.Duration
	WriteTimeout   time.Duration // bound on a started write, independent of the caller
	Log            zerolog.Logger
}

// List is the entity for one todo list.
type List struct {
	key  string
	deps *Deps
	log  zerolog.Logger
}

var (
	_ actor.Entity     = (*List)(nil)
	_ actor.Remindable = (*List)(nil)
)

// NewDirectory builds the directory that hosts todo lists.
func NewDirectory(cfg actor.Config, deps Deps) *actor.Directory[*List] {
	if cfg.Kind == "" {
		cfg.Kind = Kind
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(deps.Log)
	}
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = 10 * time.Second
	}
	shared := &deps
	return actor.NewDirectory(cfg, func(key string) *List {
		return &List{key: key, deps: shared, log: shared.Log.With().Str("list", key).Logger()}
	}, deps.Log)
}

// OnActivate probes the stored items and makes sure the daily reminder is registered.
func (l *List) OnActivate(ctx context.Context) error {
	if _, _, err := l.deps.States.Get(ctx, l.key, ItemsState); err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	err := l.deps.Reminders.Register(ctx, model.Reminder{
		EntityKey: l.key,
		Name:      ReminderName,
		DueTime:   l.deps.ReminderDue,
		Period:    l.deps.ReminderPeriod,
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", ReminderName, err)
	}
	return nil
}

// Items returns the stored items; found is false when nothing was ever added.
func (l *List) Items(ctx context.Context) ([]model.ListItem, bool, error) {
	raw, found, err := l.deps.States.Get(ctx, l.key, ItemsState)
	if err != nil || !found {
		return nil, false, err
	}
	items, err := decodeItems(raw)
	if err != nil {
		return nil, false, err
	}
	return items, true, nil
}

// Add appends item in a single read-modify-write. Once started the write is detached from
// the caller's cancellation so it either lands completely or not at all.
func (l *List) Add(ctx context.Context, item model.ListItem) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.deps.WriteTimeout)
	defer cancel()

	initial, err := json.Marshal([]model.ListItem{item})
	if err != nil {
		return err
	}
	_, err = l.deps.States.ReadModifyWrite(wctx, l.key, ItemsState, initial, func(cur []byte) ([]byte, error) {
		items, err := decodeItems(cur)
		if err != nil {
			return nil, err
		}
		return json.Marshal(append(items, item))
	})
	if err != nil {
		return fmt.Errorf("add item to %s: %w", l.key, err)
	}
	return nil
}

// ReceiveReminder handles reminder callbacks. A failing notifier is logged and counted but
// never fails the callback; a storage error does, so the reminder is retried.
func (l *List) ReceiveReminder(ctx context.Context, name string, _ []byte) error {
	if name != ReminderName {
		l.log.Warn().Str("reminder", name).Msg("ignoring unknown reminder")
		return nil
	}
	items, _, err := l.Items(ctx)
	if err != nil {
		return err
	}
	if err := l.deps.Notifier.Notify(ctx, l.key, items); err != nil {
		notificationsFailed.Inc()
		l.log.Error().Stack().Err(err).Int("items", len(items)).Msg("reminder notification failed")
		return nil
	}
	notificationsTotal.Inc()
	return nil
}

func decodeItems(raw []byte) ([]model.ListItem, error) {
	var items []model.ListItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}
