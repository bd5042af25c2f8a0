package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-todo/internal/model"
)

var errBusy = errors.New("database is locked")

func transientBusy(err error) bool { return errors.Is(err, errBusy) }

var fastPolicy = RetryPolicy{MaxAttempts: 4, BaseBackoff: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestRetry_RecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy, "set", transientBusy, func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustedBecomesStorageUnavailable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy, "set", transientBusy, func() error {
		calls++
		return errBusy
	})
	require.Error(t, err)
	assert.Equal(t, fastPolicy.MaxAttempts, calls)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.ErrorIs(t, err, errBusy)

	var se *model.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "set", se.Op)
}

func TestRetry_PermanentFailureIsNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy, "get", transientBusy, func() error {
		calls++
		return errors.New("no such table")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestRetry_AbortReturnsCallerError(t *testing.T) {
	sentinel := errors.New("corrupt list")
	calls := 0
	err := Retry(context.Background(), fastPolicy, "read-modify-write", transientBusy, func() error {
		calls++
		return Abort(sentinel)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, sentinel, err)
	assert.NotErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fastPolicy, "get", transientBusy, func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, model.ErrStorageUnavailable)
}
