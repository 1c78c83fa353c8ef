package core

import (
	"context"
	"sync/atomic"
)

// Future is the producer-visible half of a single-assignment result cell.
// The consumer loop settles it exactly once, with the computation's value
// or with its failure, and the submitter collects the outcome via Get.
//
// A Future is created only by the Execute family; there is no standalone
// promise constructor.
type Future[T any] struct {
	done    chan struct{}
	settled atomic.Bool

	// value and err are written once, before done is closed; the channel
	// close publishes them to readers.
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve settles the cell with a value. Consumer-side only.
func (f *Future[T]) resolve(value T) {
	if !f.settled.CompareAndSwap(false, true) {
		panic("looper: future settled twice")
	}
	f.value = value
	close(f.done)
}

// reject settles the cell with the task's failure. Consumer-side only.
func (f *Future[T]) reject(err error) {
	if !f.settled.CompareAndSwap(false, true) {
		panic("looper: future settled twice")
	}
	f.err = err
	close(f.done)
}

// Get blocks until the cell settles, then returns the value or the captured
// failure. The failure is returned as the identical error value the
// computation produced (panics arrive wrapped in *TaskPanicError).
//
// There is no timeout of its own; bound the wait through ctx. A ctx error
// means the wait was abandoned, not that the task failed; the task may
// still settle the cell later.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the cell settles. For select-based
// composition.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsSettled reports whether the cell has been resolved or rejected.
func (f *Future[T]) IsSettled() bool {
	return f.settled.Load()
}
