package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/model"
)

type activation[E Entity] struct {
	dir     *Directory[E]
	key     string
	log     zerolog.Logger
	mailbox chan *turn[E]

	// mu orders senders (read side) against stopping (write side).
	mu       sync.RWMutex
	stopped  bool
	stopping chan struct{}
	stopOnce sync.Once
}

func newActivation[E Entity](d *Directory[E], key string) *activation[E] {
	return &activation[E]{
		dir:      d,
		key:      key,
		log:      d.log.With().Str("key", key).Logger(),
		mailbox:  make(chan *turn[E], d.cfg.MailboxSize),
		stopping: make(chan struct{}),
	}
}

// enqueue hands t to the worker. accepted=false means the activation is stopping and the
// caller should resolve the key again.
func (a *activation[E]) enqueue(ctx context.Context, t *turn[E]) (accepted bool, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return false, nil
	}

	select {
	case a.mailbox <- t:
		return true, nil
	default:
	}

	timer := time.NewTimer(a.dir.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case a.mailbox <- t:
		return true, nil
	case <-a.stopping:
		return false, nil
	case <-ctx.Done():
		return false, cancelled(ctx)
	case <-timer.C:
		mailboxFullTotal.WithLabelValues(a.dir.cfg.Kind).Inc()
		return false, &MailboxFullError{Key: a.key, Length: len(a.mailbox), Capacity: cap(a.mailbox)}
	}
}

// beginStop closes stopping, which wakes blocked senders, then marks the activation stopped.
// After it returns no turn can enter the mailbox.
func (a *activation[E]) beginStop() {
	a.stopOnce.Do(func() { close(a.stopping) })
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

func (a *activation[E]) run() {
	defer a.dir.wg.Done()
	kind := a.dir.cfg.Kind

	entity, err := a.activate()
	if err != nil {
		activationsTotal.WithLabelValues(kind, "failed").Inc()
		a.log.Error().Err(err).Msg("activation failed")
		a.fail(&model.ActivationError{Key: a.key, Err: err})
		return
	}
	activationsTotal.WithLabelValues(kind, "ok").Inc()
	a.log.Debug().Msg("activated")

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if a.dir.cfg.IdleTimeout > 0 {
		idleTimer = time.NewTimer(a.dir.cfg.IdleTimeout)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		select {
		case t := <-a.mailbox:
			mailboxDepth.WithLabelValues(kind).Observe(float64(len(a.mailbox)))
			a.runTurn(entity, t)
			if idleTimer != nil {
				idleTimer.Reset(a.dir.cfg.IdleTimeout)
			}

		case <-idle:
			if a.tryEvict() {
				a.deactivate(entity, "idle")
				return
			}
			idleTimer.Reset(a.dir.cfg.IdleTimeout)

		case <-a.stopping:
			a.beginStop()
			for drained := false; !drained; {
				select {
				case t := <-a.mailbox:
					a.runTurn(entity, t)
				default:
					drained = true
				}
			}
			a.dir.remove(a)
			a.deactivate(entity, "shutdown")
			return
		}
	}
}

// activate builds the entity and runs OnActivate within ActivationTimeout. The hook runs on
// its own goroutine so a hook that ignores its context still cannot hold the worker.
func (a *activation[E]) activate() (E, error) {
	type result struct {
		entity E
		err    error
	}
	timeout := a.dir.cfg.ActivationTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res <- result{err: fmt.Errorf("OnActivate panic: %v", r)}
			}
		}()
		e := a.dir.factory(a.key)
		res <- result{entity: e, err: e.OnActivate(ctx)}
	}()

	var zero E
	select {
	case r := <-res:
		if r.err != nil {
			return zero, r.err
		}
		return r.entity, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("activation timed out after %s: %w", timeout, ctx.Err())
	}
}

// fail discards the activation and answers every queued turn with err.
func (a *activation[E]) fail(err error) {
	a.beginStop()
	a.dir.remove(a)
	for {
		select {
		case t := <-a.mailbox:
			if t.start() {
				t.finish(err)
			}
		default:
			return
		}
	}
}

// tryEvict stops the activation if nothing is queued and no sender is mid-enqueue.
func (a *activation[E]) tryEvict() bool {
	if !a.mu.TryLock() {
		return false
	}
	defer a.mu.Unlock()
	if len(a.mailbox) > 0 {
		return false
	}
	a.stopped = true
	a.stopOnce.Do(func() { close(a.stopping) })
	a.dir.remove(a)
	return true
}

func (a *activation[E]) runTurn(e E, t *turn[E]) {
	if t.ctx.Err() != nil {
		if t.abandon() {
			t.finish(cancelled(t.ctx))
		}
		return
	}
	if !t.start() {
		return // caller gave up before we got here
	}

	start := time.Now()
	err := a.safeCall(func() error { return t.fn(t.ctx, e) })
	turnDuration.WithLabelValues(a.dir.cfg.Kind).Observe(time.Since(start).Seconds())
	t.finish(err)
}

// safeCall keeps a panicking turn from killing the worker.
func (a *activation[E]) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Msg("turn panic")
			err = fmt.Errorf("%s %q: turn panic: %v", a.dir.cfg.Kind, a.key, r)
		}
	}()
	return fn()
}

func (a *activation[E]) deactivate(e E, reason string) {
	deactivationsTotal.WithLabelValues(a.dir.cfg.Kind, reason).Inc()
	a.log.Debug().Str("reason", reason).Msg("deactivated")
	d, ok := any(e).(Deactivator)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.dir.cfg.ActivationTimeout)
	defer cancel()
	_ = a.safeCall(func() error {
		d.OnDeactivate(ctx)
		return nil
	})
}
