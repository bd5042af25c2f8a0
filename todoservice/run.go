// Package todoservice assembles the todo service: store, reminder scheduler, entity directory,
// health checkers and the HTTP facade.
package todoservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mycelian/mycelian-todo/internal/actor"
	"github.com/mycelian/mycelian-todo/internal/api"
	"github.com/mycelian/mycelian-todo/internal/config"
	"github.com/mycelian/mycelian-todo/internal/factory"
	"github.com/mycelian/mycelian-todo/internal/health"
	"github.com/mycelian/mycelian-todo/internal/logger"
	"github.com/mycelian/mycelian-todo/internal/reminder"
	"github.com/mycelian/mycelian-todo/internal/store"
	"github.com/mycelian/mycelian-todo/internal/todo"
)

// Run starts the todo service and blocks until SIGINT/SIGTERM or a fatal error.
// A non-empty buildTarget overrides TODO_SERVICE_BUILD_TARGET.
func Run(buildTarget string) error {
	log := logger.New("todo-service")
	logger.SetGlobal(log)

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	if buildTarget != "" {
		cfg.BuildTarget = buildTarget
		cfg.DBDriver = "auto"
		if err := cfg.ResolveDefaults(); err != nil {
			log.Error().Err(err).Msg("Invalid build-target override")
			return err
		}
	}

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	ln, err := net.Listen("tcp", cfg.GetHTTPAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GetHTTPAddr(), err)
	}
	return Serve(ctx, cfg, log, ln)
}

// Serve runs the service on ln until ctx is canceled. It owns ln and every component it builds.
func Serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, ln net.Listener) error {
	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("addr", ln.Addr().String()).
		Msg("Todo service starting")

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		_ = ln.Close()
		log.Error().Stack().Err(err).Msg("Store unavailable")
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("store close")
		}
	}()

	sched := reminder.New(st.Reminders(), reminder.Config{
		Interval:         cfg.SchedulerInterval,
		BatchSize:        cfg.SchedulerBatchSize,
		Lease:            cfg.SchedulerLease,
		FiringsPerSecond: cfg.SchedulerFiringsPerSecond,
	}, log)
	if _, err := sched.Recover(ctx); err != nil {
		_ = ln.Close()
		log.Error().Stack().Err(err).Msg("reminder recovery failed")
		return err
	}

	dir := todo.NewDirectory(actor.Config{
		Kind:              todo.Kind,
		MailboxSize:       cfg.MailboxSize,
		EnqueueTimeout:    cfg.EnqueueTimeout,
		ActivationTimeout: cfg.ActivationTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}, todo.Deps{
		States:         st.States(),
		Reminders:      sched,
		Notifier:       factory.NewNotifier(cfg, log),
		ReminderDue:    cfg.ReminderDue,
		ReminderPeriod: cfg.ReminderPeriod,
		Log:            log,
	})
	svc := todo.NewService(dir)
	defer func() { _ = svc.Close() }()

	svcHealth := startHealthCheckers(ctx, cfg, log, st, sched)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		_ = ln.Close()
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, api.NewRouter(svc, svcHealth, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx, dir); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server starting")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Stack().Err(err).Msg("HTTP server failed")
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	err = g.Wait()
	log.Info().Int("resident_lists", dir.Len()).Msg("Server exited")
	return err
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, sched *reminder.Scheduler) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker, reminder.NewHealthChecker(sched))
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
