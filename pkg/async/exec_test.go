package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/pkg/async"
)

func TestExecErrorPropagation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	expectedErr := errors.New("an error occurred in the exec function")

	future := async.Exec(ctx, 42, func(ctx context.Context, num int) error {
		time.Sleep(20 * time.Millisecond)
		return expectedErr
	})

	err := future.Await()
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error '%v', got: %v", expectedErr, err)
	}
	assert.Equal(t, expectedErr, future.Err())
}

func TestExecPreCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	future := async.Exec(ctx, 1, func(ctx context.Context, _ int) error {
		called = true
		return nil
	})

	err := future.Await()
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestExecDoneAndIsComplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	release := make(chan struct{})
	future := async.Exec(ctx, 0, func(ctx context.Context, _ int) error {
		<-release
		return nil
	})

	assert.False(t, future.IsComplete())
	assert.NoError(t, future.Err())

	close(release)

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for future")
	}
	assert.True(t, future.IsComplete())
}

func TestExecAwaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	future := async.Exec(context.Background(), 0, func(ctx context.Context, _ int) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := future.AwaitContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecAwaitWithTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fastFuture := async.Exec(ctx, 10, func(ctx context.Context, ms int) error {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil
	})
	if err := fastFuture.AwaitWithTimeout(time.Second); err != nil {
		t.Errorf("Expected no error for fast future, got: %v", err)
	}

	slowFuture := async.Exec(ctx, 200, func(ctx context.Context, ms int) error {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil
	})
	err := slowFuture.AwaitWithTimeout(20 * time.Millisecond)
	if !errors.Is(err, async.ErrTimeout) {
		t.Errorf("Expected timeout error, got: %v", err)
	}
}

func TestExecConcurrentIncrement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu sync.Mutex
	counter := 0

	futures := make([]*async.ExecFuture, 0, 500)
	for range 500 {
		futures = append(futures, async.Exec(ctx, 1, func(_ context.Context, delta int) error {
			mu.Lock()
			defer mu.Unlock()
			counter += delta
			return nil
		}))
	}

	require.NoError(t, async.ExecAll(futures...))
	assert.Equal(t, 500, counter)
}

func TestExecAllReturnsFirstError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	first := errors.New("first")
	futures := []*async.ExecFuture{
		async.Exec(ctx, 0, func(context.Context, int) error { return nil }),
		async.Exec(ctx, 0, func(context.Context, int) error { return first }),
		async.Exec(ctx, 0, func(context.Context, int) error { return errors.New("second") }),
	}

	assert.ErrorIs(t, async.ExecAll(futures...), first)
}

func TestExecAny(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns first completed", func(t *testing.T) {
		t.Parallel()

		slow := async.Exec(ctx, 0, func(context.Context, int) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})
		fast := async.Exec(ctx, 0, func(context.Context, int) error {
			return nil
		})

		index, err := async.ExecAny(slow, fast)
		require.NoError(t, err)
		assert.Equal(t, 1, index)
	})

	t.Run("no futures", func(t *testing.T) {
		t.Parallel()

		index, err := async.ExecAny()
		assert.Equal(t, -1, index)
		assert.ErrorIs(t, err, async.ErrNoFutures)
	})
}
