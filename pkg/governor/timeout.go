package governor

import (
	"context"
	"errors"
	"time"
)

// WithTimeout runs op under a hard deadline and surfaces exactly one outcome:
// the op's own result if it settles in time, or a *TimeoutError once d
// elapses. At the deadline the derived context is cancelled so the op's
// transport aborts; a settlement that arrives later is discarded. An op error
// caused by our own deadline is normalized to *TimeoutError. Cancellation of
// the parent context surfaces as the parent's error, never as a timeout.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(callCtx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		if errors.Is(out.err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil {
			var zero T
			return zero, &TimeoutError{Limit: d}
		}
		return out.val, out.err
	case <-callCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{Limit: d}
	}
}
