// Package reminder is the durable reminder scheduler. Reminders live in the store's
// reminders table; a poll loop leases due rows, dispatches them and acknowledges the result.
// Delivery is at-least-once: a crash between dispatch and acknowledgement leaves the lease to
// expire and the reminder fires again.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mycelian/mycelian-todo/internal/model"
	"github.com/mycelian/mycelian-todo/internal/store"
)

// Dispatcher delivers a fired reminder to its entity.
type Dispatcher interface {
	Deliver(ctx context.Context, key, name string, payload []byte) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, key, name string, payload []byte) error

func (f DispatcherFunc) Deliver(ctx context.Context, key, name string, payload []byte) error {
	return f(ctx, key, name, payload)
}

// Config controls polling cadence, batch size and lease length.
type Config struct {
	Interval         time.Duration // poll interval
	BatchSize        int           // reminders leased per cycle
	Lease            time.Duration // how long a fired reminder stays invisible to other owners
	FiringsPerSecond float64       // dispatch rate limit
	BaseBackoff      time.Duration // first retry delay after a failed delivery
	MaxBackoff       time.Duration // retry delay cap
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.FiringsPerSecond <= 0 {
		c.FiringsPerSecond = 50
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 300 * time.Second
	}
	return c
}

// Scheduler owns the poll loop for one process. Several schedulers may share a store;
// leases keep them from firing the same row concurrently.
type Scheduler struct {
	reminders store.Reminders
	cfg       Config
	log       zerolog.Logger
	owner     string
	limiter   *rate.Limiter
	now       func() time.Time

	pollFailures atomic.Int32 // consecutive failed polls
}

// New constructs a Scheduler with a fresh owner id.
func New(reminders store.Reminders, cfg Config, log zerolog.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	owner := uuid.New().String()
	return &Scheduler{
		reminders: reminders,
		cfg:       cfg,
		log:       log.With().Str("component", "reminder-scheduler").Str("owner", owner).Logger(),
		owner:     owner,
		limiter:   rate.NewLimiter(rate.Limit(cfg.FiringsPerSecond), cfg.BatchSize),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Owner returns the lease owner id of this scheduler.
func (s *Scheduler) Owner() string { return s.owner }

// Register persists r. Registering identical parameters again keeps the stored schedule;
// different parameters replace it and the first firing moves to now + DueTime.
func (s *Scheduler) Register(ctx context.Context, r model.Reminder) error {
	if r.EntityKey == "" {
		return model.NewValidationError("entityKey", "must not be empty")
	}
	if r.Name == "" {
		return model.NewValidationError("name", "must not be empty")
	}
	if r.DueTime < 0 || r.Period < 0 {
		return model.NewValidationError("dueTime", "durations must not be negative")
	}
	r.NextFireAt = s.now().Add(r.DueTime)
	r.Attempts = 0
	r.LeaseOwner = ""
	r.LeaseUntil = time.Time{}

	changed, err := s.reminders.Put(ctx, &r)
	if err != nil {
		return fmt.Errorf("register reminder %s/%s: %w", r.EntityKey, r.Name, err)
	}
	s.log.Debug().Str("key", r.EntityKey).Str("reminder", r.Name).Bool("changed", changed).Msg("reminder registered")
	return nil
}

// Unregister removes a reminder. Removing an unknown reminder is not an error.
func (s *Scheduler) Unregister(ctx context.Context, key, name string) error {
	if err := s.reminders.Delete(ctx, key, name); err != nil {
		return fmt.Errorf("unregister reminder %s/%s: %w", key, name, err)
	}
	return nil
}

// Get returns the persisted reminder or model.ErrNotFound.
func (s *Scheduler) Get(ctx context.Context, key, name string) (*model.Reminder, error) {
	return s.reminders.Get(ctx, key, name)
}

// List returns the reminders registered for key.
func (s *Scheduler) List(ctx context.Context, key string) ([]*model.Reminder, error) {
	return s.reminders.List(ctx, key)
}

// Recover releases leases that expired while no scheduler was running and reports how many
// reminders are persisted. Nothing is re-created; the poll loop fires what is due.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	released, err := s.reminders.ReleaseExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("release expired leases: %w", err)
	}
	redeliveriesTotal.Add(float64(released))
	n, err := s.reminders.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count reminders: %w", err)
	}
	s.log.Info().Int("reminders", n).Int("released_leases", released).Msg("reminder recovery complete")
	return n, nil
}

// Run polls until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, d Dispatcher) error {
	s.log.Info().Int("batch", s.cfg.BatchSize).Dur("interval", s.cfg.Interval).Msg("reminder scheduler starting")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reminder scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			_, err := s.processOnce(ctx, d)
			if err == nil {
				s.pollFailures.Store(0)
				continue
			}
			if ctx.Err() == nil {
				// per-row backoff prevents hot-looping
				s.pollFailures.Add(1)
				s.log.Error().Err(err).Msg("reminder processOnce")
			}
		}
	}
}

// processOnce leases one batch, fires it and acknowledges each result. It returns the number
// of reminders fired.
func (s *Scheduler) processOnce(ctx context.Context, d Dispatcher) (int, error) {
	now := s.now()
	batch, err := s.reminders.Lease(ctx, s.owner, now, now.Add(s.cfg.Lease), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchSize)
	fired := 0
	for _, r := range batch {
		if err := s.limiter.Wait(gctx); err != nil {
			// unfired rows keep their lease and fire after it expires
			break
		}
		fired++
		g.Go(func() error {
			s.fire(gctx, d, r)
			return nil
		})
	}
	_ = g.Wait()
	return fired, nil
}

func (s *Scheduler) fire(ctx context.Context, d Dispatcher, r *model.Reminder) {
	if r.Attempts > 0 {
		redeliveriesTotal.Inc()
	}
	dctx, cancel := context.WithTimeout(ctx, s.cfg.Lease)
	err := d.Deliver(dctx, r.EntityKey, r.Name, r.Payload)
	cancel()

	log := s.log.With().Str("key", r.EntityKey).Str("reminder", r.Name).Int("attempts", r.Attempts).Logger()
	if err != nil {
		failuresTotal.Inc()
		attempts := r.Attempts + 1
		delay := s.backoff(attempts)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("reminder delivery failed")
		s.ack(ctx, log, s.reminders.Reschedule(ctx, r.EntityKey, r.Name, s.owner, s.now().Add(delay), attempts))
		return
	}

	firingsTotal.Inc()
	if r.OneShot() {
		s.ack(ctx, log, s.reminders.Complete(ctx, r.EntityKey, r.Name, s.owner))
		return
	}
	s.ack(ctx, log, s.reminders.Reschedule(ctx, r.EntityKey, r.Name, s.owner, s.now().Add(r.Period), 0))
}

func (s *Scheduler) ack(ctx context.Context, log zerolog.Logger, err error) {
	if err == nil {
		return
	}
	ackErrorsTotal.Inc()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Debug().Msg("acknowledgement skipped on shutdown")
		return
	}
	log.Error().Stack().Err(err).Msg("reminder acknowledgement failed")
}

// backoff returns BaseBackoff * 2^attempts, capped at MaxBackoff.
func (s *Scheduler) backoff(attempts int) time.Duration {
	d := float64(s.cfg.BaseBackoff) * math.Pow(2, float64(attempts))
	if d > float64(s.cfg.MaxBackoff) {
		return s.cfg.MaxBackoff
	}
	return time.Duration(d)
}
