// Based on https://github.com/256dpi/gomqtt/blob/e7823dfd0958f968b8e69eb1bf235456316c54fb/client/future/future.go
// with completed/cancelled channels exported
// which allows to wait on result in custom select statement.

package helpers

import (
	"context"
	"sync"
)

// Future holds result of operation running elsewhere, i.e. modem owner goroutine.
type Future[T any] struct {
	result    T
	err       error
	completed chan struct{}
	cancelled chan struct{}
	done      bool
	mutex     sync.Mutex
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{
		completed: make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (f *Future[T]) Cancelled() <-chan struct{} { return f.cancelled }
func (f *Future[T]) Completed() <-chan struct{} { return f.completed }

func (f *Future[T]) Complete(result T, err error) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.done {
		return false
	}

	f.result, f.err = result, err
	close(f.completed)
	f.done = true
	return true
}

func (f *Future[T]) Cancel(err error) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.done {
		return false
	}

	f.err = err
	close(f.cancelled)
	f.done = true
	return true
}

func (f *Future[T]) Result() (T, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.result, f.err
}

// Wait blocks until completed, cancelled or ctx is done.
// ctx ending does not cancel the operation itself.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.completed:
	case <-f.cancelled:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	return f.Result()
}
