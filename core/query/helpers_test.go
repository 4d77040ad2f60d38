package query_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/core/query"
)

type result struct {
	rows query.Rows
	err  error
}

// controlledFetcher blocks every call until the test sends a result.
type controlledFetcher struct {
	calls   atomic.Int32
	started chan query.Key
	results chan result

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func newControlledFetcher() *controlledFetcher {
	return &controlledFetcher{
		started: make(chan query.Key, 64),
		results: make(chan result),
	}
}

func (f *controlledFetcher) fetch(ctx context.Context, key query.Key) (query.Rows, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	f.maxSeen = max(f.maxSeen, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	f.started <- key
	select {
	case r := <-f.results:
		return r.rows, r.err
	case <-ctx.Done():
		// Keep the result channel protocol: the test may still send.
		r := <-f.results
		return r.rows, r.err
	}
}

func (f *controlledFetcher) waitStarted(t *testing.T) query.Key {
	t.Helper()
	select {
	case k := <-f.started:
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fetch to start")
		return query.Key{}
	}
}

func (f *controlledFetcher) assertNoStart(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-f.started:
		t.Fatal("unexpected fetch started")
	case <-time.After(within):
	}
}

func (f *controlledFetcher) resolve(rows query.Rows, err error) {
	f.results <- result{rows: rows, err: err}
}

func (f *controlledFetcher) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

// statusLog records listener snapshots.
type statusLog struct {
	mu      sync.Mutex
	entries []query.Entry
}

func (l *statusLog) listen(e query.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *statusLog) waitLen(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.entries) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func (l *statusLog) statuses() []query.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]query.Status, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Status
	}
	return out
}

func (l *statusLog) last() query.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return query.Entry{}
	}
	return l.entries[len(l.entries)-1]
}

func rowsN(n int, tag string) query.Rows {
	rows := make(query.Rows, n)
	for i := range rows {
		rows[i] = map[string]any{"id": i, "tag": tag}
	}
	return rows
}

func waitSettled(t *testing.T, c *query.Cache, key query.Key) query.Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e, err := c.Wait(ctx, key)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return e
}
