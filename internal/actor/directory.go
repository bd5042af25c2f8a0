// Package actor is a per-key entity runtime. A Directory holds at most one activation per
// key; each activation owns a mailbox and a single worker goroutine, so turns for one key run
// strictly one at a time in arrival order while different keys run in parallel.
//
// Activations are created on first use, run the entity's OnActivate hook before any turn, and
// are evicted after IdleTimeout without traffic. A later call simply re-activates the key.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/model"
)

// Entity is the per-key object hosted by a Directory.
type Entity interface {
	// OnActivate runs once per activation before the first turn. An error discards the
	// activation and fails the queued turns with model.ErrActivationFailed.
	OnActivate(ctx context.Context) error
}

// Deactivator is implemented by entities that want to observe eviction and shutdown.
type Deactivator interface {
	OnDeactivate(ctx context.Context)
}

// Remindable is implemented by entities that accept reminder deliveries.
type Remindable interface {
	ReceiveReminder(ctx context.Context, name string, payload []byte) error
}

// Factory builds the entity for key. It must not block; blocking setup belongs in OnActivate.
type Factory[E Entity] func(key string) E

// Config tunes mailboxes and activation lifetimes.
type Config struct {
	Kind              string        // metrics and log label
	MailboxSize       int           // buffered turns per key
	EnqueueTimeout    time.Duration // wait on a full mailbox before MailboxFullError
	ActivationTimeout time.Duration // bound on OnActivate and OnDeactivate
	IdleTimeout       time.Duration // eviction after this long without turns; <= 0 disables
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = "entity"
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 64
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 2 * time.Second
	}
	if c.ActivationTimeout <= 0 {
		c.ActivationTimeout = 5 * time.Second
	}
	return c
}

// Directory maps keys to activations.
type Directory[E Entity] struct {
	cfg     Config
	factory Factory[E]
	log     zerolog.Logger

	mu     sync.Mutex
	arena  map[string]*activation[E]
	closed bool

	wg sync.WaitGroup
}

// NewDirectory constructs an empty directory.
func NewDirectory[E Entity](cfg Config, factory Factory[E], log zerolog.Logger) *Directory[E] {
	cfg = cfg.withDefaults()
	return &Directory[E]{
		cfg:     cfg,
		factory: factory,
		log:     log.With().Str("component", "actor-directory").Str("kind", cfg.Kind).Logger(),
		arena:   make(map[string]*activation[E]),
	}
}

// Get returns a proxy for key. It does not activate anything; the first Invoke does.
func (d *Directory[E]) Get(key string) *Proxy[E] {
	return &Proxy[E]{dir: d, key: key}
}

// Len reports the number of resident activations.
func (d *Directory[E]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.arena)
}

// Deliver routes a fired reminder to the entity for key, activating it if needed.
// It satisfies reminder.Dispatcher.
func (d *Directory[E]) Deliver(ctx context.Context, key, name string, payload []byte) error {
	return d.invoke(ctx, key, func(ctx context.Context, e E) error {
		r, ok := any(e).(Remindable)
		if !ok {
			return fmt.Errorf("%s %q does not accept reminders", d.cfg.Kind, key)
		}
		return r.ReceiveReminder(ctx, name, payload)
	})
}

// Close stops accepting work, lets every activation finish its queued turns, runs
// deactivation hooks and waits for all workers to exit. It is idempotent.
func (d *Directory[E]) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return nil
	}
	d.closed = true
	live := make([]*activation[E], 0, len(d.arena))
	for _, a := range d.arena {
		live = append(live, a)
	}
	d.mu.Unlock()

	d.log.Info().Int("activations", len(live)).Msg("closing directory, draining mailboxes")
	for _, a := range live {
		a.beginStop()
	}
	d.wg.Wait()
	d.log.Info().Msg("directory closed")
	return nil
}

// invoke enqueues fn as a turn for key and waits for its result.
func (d *Directory[E]) invoke(ctx context.Context, key string, fn func(context.Context, E) error) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	t := newTurn(ctx, fn)
	for {
		a, err := d.resolve(key)
		if err != nil {
			return err
		}
		accepted, err := a.enqueue(ctx, t)
		if err != nil {
			return err
		}
		if accepted {
			break
		}
		// a was stopping; resolve again to reach a fresh activation
	}

	select {
	case err := <-t.done:
		return d.mapErr(ctx, err)
	case <-ctx.Done():
		if t.abandon() {
			return cancelled(ctx)
		}
		// already running; its result is still ours
		return d.mapErr(ctx, <-t.done)
	}
}

func (d *Directory[E]) mapErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && isContextErr(err) && !errors.Is(err, model.ErrActivationFailed) {
		return cancelled(ctx)
	}
	return err
}

// resolve returns the activation registered for key, creating and starting one if needed.
func (d *Directory[E]) resolve(key string) (*activation[E], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDirectoryClosed
	}
	if a, ok := d.arena[key]; ok {
		return a, nil
	}
	a := newActivation(d, key)
	d.arena[key] = a
	residentEntities.WithLabelValues(d.cfg.Kind).Set(float64(len(d.arena)))
	d.wg.Add(1)
	go a.run()
	return a, nil
}

// remove drops a from the arena if it is still the registered activation for its key.
func (d *Directory[E]) remove(a *activation[E]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.arena[a.key]; ok && cur == a {
		delete(d.arena, a.key)
		residentEntities.WithLabelValues(d.cfg.Kind).Set(float64(len(d.arena)))
	}
}

// Proxy is a location-transparent handle to the entity for one key.
type Proxy[E Entity] struct {
	dir *Directory[E]
	key string
}

// Key returns the entity key this proxy addresses.
func (p *Proxy[E]) Key() string { return p.key }

// Invoke runs fn as a turn on the entity, after any turns already queued for the key.
//
//   - A ctx that is done before the turn starts yields model.ErrCancelled; fn never runs.
//   - A failed activation yields model.ErrActivationFailed.
//   - A mailbox that stays full for EnqueueTimeout yields *MailboxFullError.
//   - Otherwise fn's error is returned.
func (p *Proxy[E]) Invoke(ctx context.Context, fn func(ctx context.Context, e E) error) error {
	return p.dir.invoke(ctx, p.key, fn)
}
