// Package health aggregates component checkers into one service status.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, scheduler). Checkers that
// probe on their own cadence are started by the caller; the aggregator only reads them.
type HealthChecker interface {
	Name() string
	IsHealthy() bool
}

// HealthPinger is implemented by components that can be probed directly.
// HealthPing returns nil when the component is healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// ServiceHealthChecker caches the status of every dependency. The service is healthy only
// when all of them are; it starts unhealthy until the first evaluation.
type ServiceHealthChecker struct {
	deps []HealthChecker
	log  zerolog.Logger

	mu         sync.RWMutex
	healthy    bool
	components map[string]bool
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{
		deps:       deps,
		log:        log.With().Str("component", "service-health").Logger(),
		components: make(map[string]bool, len(deps)),
	}
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthy
}

// Components returns a copy of the cached per-dependency status.
func (h *ServiceHealthChecker) Components() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.components))
	for k, v := range h.components {
		out[k] = v
	}
	return out
}

// Start re-evaluates dependencies every interval until ctx is done.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.evaluate(true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate(false)
		}
	}
}

func (h *ServiceHealthChecker) evaluate(first bool) {
	next := make(map[string]bool, len(h.deps))
	all := true
	for _, c := range h.deps {
		ok := c.IsHealthy()
		next[c.Name()] = ok
		all = all && ok
	}

	h.mu.Lock()
	prevAll := h.healthy
	prev := h.components
	h.components = next
	h.healthy = all
	h.mu.Unlock()

	for name, ok := range next {
		if was, seen := prev[name]; seen && was != ok {
			h.log.Warn().Str("checker", name).Bool("healthy", ok).Msg("component health changed")
		}
	}
	switch {
	case all && (!prevAll || first):
		h.log.Info().Msg("service health: UP")
	case !all && (prevAll || first):
		h.log.Error().Interface("components", next).Msg("service health: DOWN")
	}
}
