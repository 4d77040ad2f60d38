package channel_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/core/channel"
)

type fakeSub struct {
	topic   channel.Topic
	deliver func(channel.Event)
	done    chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
	ended  bool
}

func (s *fakeSub) Done() <-chan struct{} { return s.done }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if !s.ended {
		s.ended = true
		close(s.done)
	}
	return nil
}

func (s *fakeSub) drop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		s.err = err
		close(s.done)
	}
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) emit(op channel.Operation, keys ...string) {
	s.deliver(channel.Event{Operation: op, AffectedKeys: keys})
}

// fakeTransport opens in-memory subscriptions and can be told to fail.
type fakeTransport struct {
	mu       sync.Mutex
	failures int // fail this many upcoming Subscribe calls
	failErr  error
	calls    map[channel.Topic]int
	subs     map[channel.Topic][]*fakeSub
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls: make(map[channel.Topic]int),
		subs:  make(map[channel.Topic][]*fakeSub),
	}
}

func (f *fakeTransport) Subscribe(ctx context.Context, topic channel.Topic, deliver func(channel.Event)) (channel.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[topic]++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		err := f.failErr
		if err == nil {
			err = errors.New("connection refused")
		}
		return nil, err
	}

	s := &fakeSub{topic: topic, deliver: deliver, done: make(chan struct{})}
	f.subs[topic] = append(f.subs[topic], s)
	return s, nil
}

func (f *fakeTransport) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *fakeTransport) callCount(topic channel.Topic) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[topic]
}

func (f *fakeTransport) latest(t *testing.T, topic channel.Topic) *fakeSub {
	t.Helper()
	var s *fakeSub
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subs[topic]
		if len(subs) == 0 {
			return false
		}
		s = subs[len(subs)-1]
		return true
	}, 2*time.Second, time.Millisecond)
	return s
}

func (f *fakeTransport) openCount(topic channel.Topic) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic])
}

// eventLog records consumer events.
type eventLog struct {
	mu     sync.Mutex
	events []channel.Event
}

func (l *eventLog) record(ev channel.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []channel.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]channel.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) waitLen(t *testing.T, n int) []channel.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.events) >= n
	}, 2*time.Second, time.Millisecond)
	return l.snapshot()
}

func waitStatus(t *testing.T, m *channel.Manager, table, filter string, want channel.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, _ := m.Status(table, filter)
		return st == want
	}, 2*time.Second, time.Millisecond)
}
