package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/pkg/async"
)

// Store owns the current session.
type Store struct {
	provider IdentityProvider
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *Session
	err       error
	started   bool
	closed    bool
	pushed    bool
	unsubPush func()

	listeners map[uint64]func(*Session)
	order     []uint64
	nextID    uint64

	dispatch async.Serial
}

// NewStore creates a store over provider. Call Start to load the initial session.
func NewStore(provider IdentityProvider, opts ...Option) (*Store, error) {
	if provider == nil {
		return nil, ErrProviderNil
	}

	s := &Store{
		provider:  provider,
		logger:    defaultLogger(),
		now:       time.Now,
		listeners: make(map[uint64]func(*Session)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start subscribes to provider pushes and performs the initial fetch.
// A push that arrives while the fetch is in flight wins over its result.
// A failed fetch leaves the store without a session and is reported by Err,
// not returned; Start only fails on lifecycle misuse.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrStoreAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	unsub := s.provider.OnSessionChange(s.handlePush)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return ErrStoreClosed
	}
	s.unsubPush = unsub
	s.mu.Unlock()

	sess, err := s.provider.GetSession(ctx)
	if err == nil && sess != nil {
		if verr := sess.Validate(s.now()); errors.Is(verr, ErrInvalidToken) {
			err = verr
		}
	}

	s.mu.Lock()
	switch {
	case s.closed || s.pushed:
		// Closed meanwhile, or a push already superseded this result.
	case err != nil:
		s.err = errors.Join(ErrSessionUnavailable, err)
		s.logger.WarnContext(ctx, "initial session fetch failed",
			logger.Component("session"),
			logger.Error(err),
		)
		s.setLocked(nil)
	default:
		s.setLocked(sess)
		s.logger.DebugContext(ctx, "initial session loaded",
			logger.Component("session"),
			logger.Subject(subjectOf(sess)),
		)
	}
	s.mu.Unlock()

	s.dispatch.Drain()
	return nil
}

// Current returns a copy of the current session.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Err returns the error recorded by the initial fetch, if any.
// It is cleared once the provider pushes a session.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnChange registers listener for session replacements. Listeners are not
// called with the session that was current at registration time.
func (s *Store) OnChange(listener func(*Session)) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = listener
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			if i := slices.Index(s.order, id); i >= 0 {
				s.order = slices.Delete(s.order, i, i+1)
			}
			s.mu.Unlock()
		})
	}
}

// SignOut signs out at the provider and publishes an absent session locally,
// whether or not the provider pushes one.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrStoreNotStarted
	}
	s.mu.Unlock()

	err := s.provider.SignOut(ctx)

	s.mu.Lock()
	if !s.closed {
		s.setLocked(nil)
	}
	s.mu.Unlock()
	s.dispatch.Drain()

	if err != nil {
		s.logger.WarnContext(ctx, "provider sign-out failed",
			logger.Component("session"),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// Close stops relaying provider pushes. Listeners stay registered but
// receive nothing further.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsub := s.unsubPush
	s.unsubPush = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return nil
}

func (s *Store) handlePush(sess *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pushed = true
	if sess != nil && sess.Validate(s.now()) == nil {
		s.err = nil
	}
	s.setLocked(sess)
	s.mu.Unlock()

	s.dispatch.Drain()
}

// setLocked replaces the current session and queues notifications.
// Callers hold s.mu and must Drain after unlocking.
func (s *Store) setLocked(sess *Session) {
	if sess != nil && sess.Token == "" {
		s.logger.Warn("dropping session without token",
			logger.Component("session"),
			logger.Subject(sess.Claims.Subject),
		)
		sess = nil
	}
	if s.current.equal(sess) {
		return
	}

	s.current = sess.clone()
	ids := slices.Clone(s.order)
	snapshot := s.current.clone()

	s.dispatch.Push(func() {
		for _, id := range ids {
			s.mu.Lock()
			fn, ok := s.listeners[id]
			s.mu.Unlock()
			if ok {
				fn(snapshot.clone())
			}
		}
	})
}

func subjectOf(sess *Session) string {
	if sess == nil {
		return ""
	}
	return sess.Claims.Subject
}
