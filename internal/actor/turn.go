package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mycelian/mycelian-todo/internal/model"
)

const (
	turnPending int32 = iota
	turnStarted
	turnAbandoned
)

// turn is one queued invocation. Exactly one of the worker (start) or the
// waiting caller (abandon) wins the state transition out of pending.
type turn[E Entity] struct {
	ctx   context.Context
	fn    func(context.Context, E) error
	state atomic.Int32
	done  chan error // buffered, written once
}

func newTurn[E Entity](ctx context.Context, fn func(context.Context, E) error) *turn[E] {
	return &turn[E]{ctx: ctx, fn: fn, done: make(chan error, 1)}
}

func (t *turn[E]) start() bool   { return t.state.CompareAndSwap(turnPending, turnStarted) }
func (t *turn[E]) abandon() bool { return t.state.CompareAndSwap(turnPending, turnAbandoned) }

func (t *turn[E]) finish(err error) { t.done <- err }

// cancelled reports ctx's error as model.ErrCancelled while keeping the context cause matchable.
func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", model.ErrCancelled, context.Cause(ctx))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
