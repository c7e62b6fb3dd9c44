// Package guard bounds external-process calls with deadlines. A hung
// collaborator fails the calling phase instead of starving the server.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %d seconds", e.Operation, int(e.Timeout.Seconds()))
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type outcome[T any] struct {
	val T
	err error
}

// Run races fn against a deadline and returns whichever finishes first.
// The context passed to fn is cancelled when the deadline elapses or when
// the parent context is cancelled, so a well-behaved subprocess is torn
// down on either outcome. Cancellation is best-effort: if fn ignores its
// context, Run still returns a *TimeoutError and the fn goroutine is left
// to finish on its own.
func Run[T any](ctx context.Context, timeout time.Duration, operation string, fn func(context.Context) (T, error)) (T, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so a late fn return never blocks the abandoned goroutine.
	done := make(chan outcome[T], 1)
	go func() {
		val, err := fn(runCtx)
		done <- outcome[T]{val: val, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return out.val, &TimeoutError{Operation: operation, Timeout: timeout}
		}
		return out.val, out.err
	case <-runCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{Operation: operation, Timeout: timeout}
	}
}
