package store

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/mycelian/mycelian-todo/internal/model"
)

// RetryPolicy bounds the retries a driver performs on transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxInterval time.Duration
}

// DefaultRetryPolicy is used by drivers constructed without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseBackoff: 20 * time.Millisecond, MaxInterval: time.Second}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultRetryPolicy.BaseBackoff
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	return p
}

// abort marks an error produced by caller code (an UpdateFunc) rather than by storage.
type abort struct{ err error }

func (a *abort) Error() string { return a.err.Error() }
func (a *abort) Unwrap() error { return a.err }

// Abort wraps an UpdateFunc error so Retry returns it verbatim without retrying
// and without reporting it as a storage failure.
func Abort(err error) error { return &abort{err: err} }

// Retry runs op, retrying while isTransient reports true. A context error is returned as-is,
// an Abort error is unwrapped and returned as-is, anything else is reported as a
// *model.StorageError for op.
func Retry(ctx context.Context, p RetryPolicy, op string, isTransient func(error) bool, fn func() error) error {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var a *abort
		if errors.As(err, &a) || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if err == nil {
		return nil
	}

	var a *abort
	if errors.As(err, &a) {
		return a.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, ctxErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctxErr
	}
	if errors.Is(err, model.ErrNotFound) {
		return err
	}
	return &model.StorageError{Op: op, Err: pkgerrors.WithStack(err)}
}
