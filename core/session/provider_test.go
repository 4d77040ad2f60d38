package session_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/livesync/core/session"
)

// mockProvider implements session.IdentityProvider. GetSession and SignOut go
// through testify mock; pushes are delivered with push.
type mockProvider struct {
	mock.Mock

	mu        sync.Mutex
	listeners map[int]func(*session.Session)
	next      int
}

func newMockProvider() *mockProvider {
	return &mockProvider{listeners: make(map[int]func(*session.Session))}
}

func (m *mockProvider) GetSession(ctx context.Context) (*session.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *mockProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockProvider) OnSessionChange(listener func(*session.Session)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *mockProvider) push(s *session.Session) {
	m.mu.Lock()
	ls := make([]func(*session.Session), 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
}

func (m *mockProvider) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
