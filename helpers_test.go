package livesync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
	"github.com/dmitrymomot/livesync/integration/realtime/memory"
)

type fakeProvider struct {
	mu        sync.Mutex
	current   *session.Session
	listeners map[int]func(*session.Session)
	next      int
	signOuts  int
}

func newFakeProvider(initial *session.Session) *fakeProvider {
	return &fakeProvider{current: initial, listeners: make(map[int]func(*session.Session))}
}

func (p *fakeProvider) GetSession(context.Context) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakeProvider) OnSessionChange(listener func(*session.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.listeners[id] = listener
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOuts++
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) push(s *session.Session) {
	p.mu.Lock()
	p.current = s
	ls := make([]func(*session.Session), 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
}

func signedIn(subject, role string) *session.Session {
	return &session.Session{
		Token:     "token-" + subject,
		ExpiresAt: time.Now().Add(time.Hour),
		Claims:    session.Claims{Subject: subject, Role: role},
	}
}

// ownerFetcher returns one row naming the subject it fetched for. A fetch
// for a subject listed in hold blocks until release is closed.
type ownerFetcher struct {
	mu      sync.Mutex
	calls   int
	version int
	hold    map[string]chan struct{}
}

func newOwnerFetcher() *ownerFetcher {
	return &ownerFetcher{hold: make(map[string]chan struct{})}
}

func (f *ownerFetcher) Fetch(ctx context.Context, sess session.Session, key query.Key) (query.Rows, error) {
	f.mu.Lock()
	f.calls++
	f.version++
	v := f.version
	gate := f.hold[sess.Claims.Subject]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return query.Rows{{"owner": sess.Claims.Subject, "table": key.Table(), "version": v}}, nil
}

func (f *ownerFetcher) block(subject string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.hold[subject] = ch
	return ch
}

func (f *ownerFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type entryLog struct {
	mu      sync.Mutex
	entries []query.Entry
}

func (l *entryLog) listen(e query.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *entryLog) all() []query.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]query.Entry(nil), l.entries...)
}

func (l *entryLog) last() query.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return query.Entry{}
	}
	return l.entries[len(l.entries)-1]
}

func (l *entryLog) statuses() []query.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]query.Status, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Status)
	}
	return out
}

func (l *entryLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func waitStatus(t *testing.T, l *entryLog, want query.Status) query.Entry {
	t.Helper()
	require.Eventually(t, func() bool { return l.last().Status == want }, 2*time.Second, 5*time.Millisecond,
		"last status is %q", l.last().Status)
	return l.last()
}

func newClient(t *testing.T, provider *fakeProvider, fetcher livesync.Fetcher, opts ...livesync.Option) (*livesync.Client, *memory.Hub) {
	t.Helper()

	hub := memory.New()
	t.Cleanup(func() { _ = hub.Close() })

	client, err := livesync.New(provider, hub, fetcher, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, hub
}
