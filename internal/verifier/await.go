package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type outcome[T any] struct {
	value T
	err   error
}

// await runs fn with its own deadline. If fn has not returned when the
// deadline passes (or the caller's context ends) await gives up and reports
// abandoned=true; fn's eventual result is then handed to late so anything it
// allocated can still be freed. A panic in fn is returned as an error.
func await[T any](
	ctx context.Context,
	timeout time.Duration,
	timeoutErr error,
	fn func(context.Context) (T, error),
	late func(T, error),
) (value T, abandoned bool, err error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: panicError(r)}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(o.err, context.DeadlineExceeded) {
			return o.value, false, timeoutErr
		}
		return o.value, false, o.err
	case <-callCtx.Done():
		go func() {
			o := <-done
			if late != nil {
				late(o.value, o.err)
			}
		}()
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, true, err
		}
		return zero, true, timeoutErr
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
