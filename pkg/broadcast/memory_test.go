package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/pkg/broadcast"
)

func receive[T any](t *testing.T, ch <-chan broadcast.Message[T]) (broadcast.Message[T], bool) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return broadcast.Message[T]{}, false
	}
}

func TestMemoryBroadcaster_FanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broadcast.NewMemoryBroadcaster[string](4)
	defer b.Close()

	s1 := b.Subscribe(ctx)
	s2 := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"}))

	msg, ok := receive(t, s1.Receive(ctx))
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Data)

	msg, ok = receive(t, s2.Receive(ctx))
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Data)

	stats := b.Stats()
	assert.Equal(t, 2, stats.Subscribers)
	assert.Equal(t, int64(2), stats.Delivered)
}

func TestMemoryBroadcaster_DropsForSlowConsumer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	sub := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 1}))
	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 2}))

	msg, _ := receive(t, sub.Receive(ctx))
	assert.Equal(t, 1, msg.Data)
	assert.Equal(t, int64(1), b.Stats().Dropped)
}

func TestMemoryBroadcaster_ContextCancelRemovesSubscriber(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx)
	cancel()

	_, ok := receive(t, sub.Receive(context.Background()))
	assert.False(t, ok, "channel should be closed after cancel")

	assert.Eventually(t, func() bool {
		return b.Stats().Subscribers == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBroadcaster_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broadcast.NewMemoryBroadcaster[int](1)
	sub := b.Subscribe(ctx)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := receive(t, sub.Receive(ctx))
	assert.False(t, ok)

	err := b.Broadcast(ctx, broadcast.Message[int]{Data: 1})
	assert.ErrorIs(t, err, broadcast.ErrBroadcasterClosed)

	late := b.Subscribe(ctx)
	_, ok = receive(t, late.Receive(ctx))
	assert.False(t, ok)
}

func TestMemoryBroadcaster_SubscriberCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	sub := b.Subscribe(ctx)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 1}))
	assert.Equal(t, 0, b.Stats().Subscribers)
}
