package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-todo/internal/health"
)

var _ health.HealthChecker = (*HealthChecker)(nil)

func TestHealthChecker_TracksPollFailures(t *testing.T) {
	s, st, _ := newTestScheduler(t)
	hc := NewHealthChecker(s)
	assert.Equal(t, "scheduler", hc.Name())
	assert.True(t, hc.IsHealthy())

	st.FailWith(errors.New("disk gone"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, &recorder{}) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return !hc.IsHealthy() }, 2*time.Second, 5*time.Millisecond)

	st.FailWith(nil)
	require.Eventually(t, hc.IsHealthy, 2*time.Second, 5*time.Millisecond)
}

func TestHealthChecker_ReadByServiceAggregator(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	svc := health.NewServiceHealthChecker(zerolog.Nop(), NewHealthChecker(s))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, svc.IsHealthy, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]bool{"scheduler": true}, svc.Components())
}
