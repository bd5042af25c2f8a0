package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mycelian/mycelian-todo/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type lifecycle struct {
	activations   atomic.Int32
	deactivations atomic.Int32
	activateErr   atomic.Pointer[error]
	blockActivate bool
}

type testEntity struct {
	key    string
	p      *lifecycle
	items  []int
	pinged []string
}

func (e *testEntity) OnActivate(ctx context.Context) error {
	e.p.activations.Add(1)
	if e.p.blockActivate {
		<-ctx.Done()
		return ctx.Err()
	}
	if errp := e.p.activateErr.Load(); errp != nil {
		return *errp
	}
	return nil
}

func (e *testEntity) OnDeactivate(context.Context) { e.p.deactivations.Add(1) }

func (e *testEntity) ReceiveReminder(_ context.Context, name string, _ []byte) error {
	e.pinged = append(e.pinged, name)
	return nil
}

func newTestDirectory(t *testing.T, cfg Config) (*Directory[*testEntity], *lifecycle) {
	t.Helper()
	p := &lifecycle{}
	d := NewDirectory(cfg, func(key string) *testEntity { return &testEntity{key: key, p: p} }, zerolog.Nop())
	t.Cleanup(func() { _ = d.Close() })
	return d, p
}

func TestInvoke_SerializesTurnsPerKey(t *testing.T) {
	d, p := newTestDirectory(t, Config{MailboxSize: 128})
	const n = 100

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
				cur := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if cur <= m || maxInFlight.CompareAndSwap(m, cur) {
						break
					}
				}
				items := e.items
				time.Sleep(50 * time.Microsecond)
				e.items = append(items, i)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var got []int
	require.NoError(t, d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
		got = append(got, e.items...)
		return nil
	}))
	assert.Len(t, got, n)
	assert.ElementsMatch(t, seq(n), got)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, int32(1), p.activations.Load())
	assert.Equal(t, 1, d.Len())
}

func TestInvoke_PreservesArrivalOrder(t *testing.T) {
	d, _ := newTestDirectory(t, Config{MailboxSize: 16})
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
				e.items = append(e.items, i)
				return nil
			})
		}(i)
		require.Eventually(t, func() bool { return queued(d, "k") == i+1 }, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()

	require.NoError(t, d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
		assert.Equal(t, seq(5), e.items)
		return nil
	}))
}

func TestInvoke_KeysRunIndependently(t *testing.T) {
	d, _ := newTestDirectory(t, Config{})
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- d.Get("k1").Invoke(context.Background(), func(context.Context, *testEntity) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.Get("k2").Invoke(ctx, func(context.Context, *testEntity) error { return nil })
	assert.NoError(t, err, "k2 must not wait for k1")

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, 2, d.Len())
}

func TestInvoke_CancelledBeforeStartIsSkipped(t *testing.T) {
	d, _ := newTestDirectory(t, Config{})
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := d.Get("k").Invoke(ctx, func(context.Context, *testEntity) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil }))
	assert.False(t, ran.Load())
}

func TestInvoke_CancelledAfterStartReturnsTurnResult(t *testing.T) {
	d, _ := newTestDirectory(t, Config{})
	started := make(chan struct{})
	release := make(chan struct{})
	errTurn := errors.New("turn result")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- d.Get("k").Invoke(ctx, func(context.Context, *testEntity) error {
			close(started)
			<-release
			return errTurn
		})
	}()
	<-started
	cancel()

	select {
	case err := <-done:
		t.Fatalf("Invoke returned before its started turn finished: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	err := <-done
	assert.ErrorIs(t, err, errTurn)
	assert.NotErrorIs(t, err, model.ErrCancelled)
}

func TestProxy_Key(t *testing.T) {
	d, _ := newTestDirectory(t, Config{})
	assert.Equal(t, "a@x.com", d.Get("a@x.com").Key())
}

func TestInvoke_AlreadyCancelled(t *testing.T) {
	d, p := newTestDirectory(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Get("k").Invoke(ctx, func(context.Context, *testEntity) error { return nil })
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Zero(t, p.activations.Load())
}

func TestInvoke_ActivationFailureIsRetrySafe(t *testing.T) {
	d, p := newTestDirectory(t, Config{})
	boom := errors.New("state load failed")
	p.activateErr.Store(&boom)

	err := d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error {
		t.Error("turn ran on a failed activation")
		return nil
	})
	assert.ErrorIs(t, err, model.ErrActivationFailed)
	assert.ErrorIs(t, err, boom)
	var ae *model.ActivationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "k", ae.Key)
	require.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, time.Millisecond)

	p.activateErr.Store(nil)
	assert.NoError(t, d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil }))
	assert.Equal(t, int32(2), p.activations.Load())
}

func TestInvoke_ActivationTimeout(t *testing.T) {
	d, p := newTestDirectory(t, Config{ActivationTimeout: 20 * time.Millisecond})
	p.blockActivate = true

	err := d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil })
	assert.ErrorIs(t, err, model.ErrActivationFailed)
	assert.NotErrorIs(t, err, model.ErrCancelled)
}

func TestInvoke_TurnPanicIsContained(t *testing.T) {
	d, _ := newTestDirectory(t, Config{})
	err := d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { panic("boom") })
	assert.ErrorContains(t, err, "turn panic")

	assert.NoError(t, d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil }))
}

func TestInvoke_MailboxFull(t *testing.T) {
	d, _ := newTestDirectory(t, Config{MailboxSize: 1, EnqueueTimeout: 20 * time.Millisecond})
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		_ = d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil })
	}()
	require.Eventually(t, func() bool { return queued(d, "k") == 1 }, time.Second, time.Millisecond)

	err := d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil })
	assert.ErrorIs(t, err, ErrMailboxFull)
	var mf *MailboxFullError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, 1, mf.Capacity)

	close(release)
	wg.Wait()
}

func TestIdleEviction(t *testing.T) {
	d, p := newTestDirectory(t, Config{IdleTimeout: 50 * time.Millisecond})

	require.NoError(t, d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
		e.items = append(e.items, 1)
		return nil
	}))
	assert.Equal(t, 1, d.Len())
	require.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.deactivations.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
		assert.Empty(t, e.items, "in-memory fields do not survive eviction")
		return nil
	}))
	assert.Equal(t, int32(2), p.activations.Load())
}

func TestClose_DrainsQueuedTurns(t *testing.T) {
	p := &lifecycle{}
	d := NewDirectory(Config{}, func(key string) *testEntity { return &testEntity{key: key, p: p} }, zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})

	results := make(chan error, 2)
	go func() {
		results <- d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	go func() {
		results <- d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil })
	}()
	require.Eventually(t, func() bool { return queued(d, "k") == 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = d.Close()
		close(closed)
	}()
	close(release)
	<-closed

	assert.NoError(t, <-results)
	assert.NoError(t, <-results)
	assert.Equal(t, int32(1), p.deactivations.Load())
	assert.Zero(t, d.Len())

	err := d.Get("k").Invoke(context.Background(), func(context.Context, *testEntity) error { return nil })
	assert.ErrorIs(t, err, ErrDirectoryClosed)
	assert.NoError(t, d.Close())
}

func TestDeliver(t *testing.T) {
	d, _ := newTestDirectory(t, Config{})
	require.NoError(t, d.Deliver(context.Background(), "k", "SendReminderEmail", nil))
	require.NoError(t, d.Get("k").Invoke(context.Background(), func(_ context.Context, e *testEntity) error {
		assert.Equal(t, []string{"SendReminderEmail"}, e.pinged)
		return nil
	}))
}

type plainEntity struct{}

func (plainEntity) OnActivate(context.Context) error { return nil }

func TestDeliver_NotRemindable(t *testing.T) {
	d := NewDirectory(Config{Kind: "plain"}, func(string) plainEntity { return plainEntity{} }, zerolog.Nop())
	defer d.Close()
	assert.Error(t, d.Deliver(context.Background(), "k", "x", nil))
}

func queued[E Entity](d *Directory[E], key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.arena[key]
	if !ok {
		return -1
	}
	return len(a.mailbox)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
