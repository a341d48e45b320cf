// Package lazy provides a process-wide, concurrency-safe holder for
// expensive-to-build values such as loaded inference models.
package lazy

import (
	"context"
	"io"
)

// Value builds its content on first use and hands the same instance to every
// later caller. A failed build is not remembered, so the next caller retries.
type Value[T any] struct {
	build func(ctx context.Context) (T, error)

	// sem is a one-slot lock that a waiting Get can abandon when its
	// context ends.
	sem   chan struct{}
	value T
	ready bool
}

// New returns a Value that calls build at most once successfully.
func New[T any](build func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{build: build, sem: make(chan struct{}, 1)}
}

// Get returns the shared instance, building it if needed. Concurrent callers
// wait for the same build rather than racing to create their own; a caller
// whose ctx ends while waiting gives up with ctx.Err(). build should honour
// ctx so a stuck backend cannot hold the slot forever.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if err := v.lock(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer v.unlock()

	if v.ready {
		return v.value, nil
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	value, err := v.build(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	v.value = value
	v.ready = true
	return value, nil
}

// Close releases the instance when it implements io.Closer. The next Get
// builds a fresh one.
func (v *Value[T]) Close() error {
	v.sem <- struct{}{}
	defer v.unlock()

	if !v.ready {
		return nil
	}
	value := v.value
	var zero T
	v.value = zero
	v.ready = false

	if closer, ok := any(value).(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (v *Value[T]) lock(ctx context.Context) error {
	select {
	case v.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case v.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Value[T]) unlock() {
	<-v.sem
}
