package async

import (
	"context"
	"time"
)

// ExecFuture represents the result of an asynchronous computation that only returns an error.
type ExecFuture struct {
	err  error
	done chan struct{}
}

// Await waits for the asynchronous function to complete and returns its error.
func (f *ExecFuture) Await() error {
	<-f.done
	return f.err
}

// AwaitContext waits for completion or for ctx to be done, whichever comes first.
// The function keeps running when ctx wins.
func (f *ExecFuture) AwaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitWithTimeout waits for the asynchronous function to complete with a timeout.
// If the timeout occurs before completion, returns ErrTimeout.
func (f *ExecFuture) AwaitWithTimeout(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-f.done:
		return f.err
	case <-t.C:
		return ErrTimeout
	}
}

// Done returns a channel that is closed once the function has returned.
func (f *ExecFuture) Done() <-chan struct{} {
	return f.done
}

// Err returns the function error. It is only meaningful after Done is closed.
func (f *ExecFuture) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// IsComplete checks if the asynchronous function is complete without blocking.
func (f *ExecFuture) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Exec executes fn asynchronously with ctx and param.
func Exec[T any](ctx context.Context, param T, fn func(context.Context, T) error) *ExecFuture {
	f := &ExecFuture{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		// Early exit prevents running work for an already abandoned caller
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}

		f.err = fn(ctx, param)
	}()

	return f
}

// ExecAll waits for all futures to complete and returns the first error encountered.
func ExecAll(futures ...*ExecFuture) error {
	var first error
	for _, future := range futures {
		if err := future.Await(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ExecAny waits for any of the futures to complete and returns its index and error.
func ExecAny(futures ...*ExecFuture) (int, error) {
	if len(futures) == 0 {
		return -1, ErrNoFutures
	}

	type result struct {
		index int
		err   error
	}

	done := make(chan result, len(futures))
	for i, future := range futures {
		go func(index int, f *ExecFuture) {
			done <- result{index: index, err: f.Await()}
		}(i, future)
	}

	res := <-done
	return res.index, res.err
}
