package async

import (
	"context"
	"time"
)

// Future holds the eventual outcome of a computation started with Async.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Async runs fn in its own goroutine and returns a Future settled with its
// outcome. If ctx is already canceled the future settles immediately with
// ctx.Err() and fn is never called.
func Async[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Await blocks until the future settles and returns its outcome.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.val, f.err
}

// AwaitWithTimeout waits up to d for the future to settle. The computation
// keeps running after a timeout; only the wait is abandoned.
func (f *Future[T]) AwaitWithTimeout(d time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-time.After(d):
		var zero T
		return zero, ErrTimeout
	}
}

// Settled reports whether the future has completed without blocking.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
