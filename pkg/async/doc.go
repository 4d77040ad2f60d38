// Package async provides small concurrency primitives shared by the cache,
// channel and session packages.
//
// # Futures
//
// Exec runs a function on its own goroutine and returns an ExecFuture that can
// be awaited, selected on, or polled:
//
//	future := async.Exec(ctx, key, func(ctx context.Context, key query.Key) error {
//		return load(ctx, key)
//	})
//
//	select {
//	case <-future.Done():
//		err := future.Err()
//	case <-ctx.Done():
//	}
//
// If the context is already cancelled when the goroutine starts, the function
// is not called and the future resolves with the context error.
//
// # Serial dispatch
//
// Serial runs callbacks one at a time in submission order. Callers enqueue
// while holding their own lock, release it, and then call Drain:
//
//	var notify async.Serial
//
//	c.mu.Lock()
//	c.state = next
//	notify.Push(func() { listener(next) })
//	c.mu.Unlock()
//
//	notify.Drain()
//
// A callback may enqueue more work, including by re-entering the component
// that owns the Serial. The nested Drain returns immediately and the active
// drainer picks the new work up, so callbacks never deadlock and never run
// concurrently with each other.
//
// # Error Handling
//
//   - ErrTimeout: returned when AwaitWithTimeout exceeds its duration
//   - ErrNoFutures: returned when ExecAny is called with no futures
package async
