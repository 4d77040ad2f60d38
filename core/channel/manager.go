package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/pkg/async"
)

// Manager owns refcounted subscriptions keyed by topic.
type Manager struct {
	transport       Transport
	logger          *slog.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
	maxAttempts     int

	mu      sync.Mutex
	subs    map[Topic]*subscription
	handles map[Handle]*subscription
	closed  bool
	wg      sync.WaitGroup

	stats managerStats
}

type subscription struct {
	topic     Topic
	status    Status
	consumers map[Handle]func(Event)
	order     []Handle
	cancel    context.CancelFunc
	dispatch  async.Serial
}

type managerStats struct {
	opens      atomic.Int64
	failures   atomic.Int64
	reconnects atomic.Int64
	resyncs    atomic.Int64
	delivered  atomic.Int64
}

// Stats holds manager counters.
type Stats struct {
	Subscriptions int
	Consumers     int
	Opens         int64
	Failures      int64
	Reconnects    int64
	Resyncs       int64
	Delivered     int64
}

// NewManager creates a manager over transport.
func NewManager(transport Transport, opts ...Option) (*Manager, error) {
	if transport == nil {
		return nil, ErrTransportNil
	}

	m := &Manager{
		transport:       transport,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
		subs:            make(map[Topic]*subscription),
		handles:         make(map[Handle]*subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Attach registers onChange for events on (table, filter). Structurally
// equal topics share one transport subscription. Attach does not wait for
// the subscription to open. It returns an empty handle once the manager is
// closed.
func (m *Manager) Attach(table, filter string, onChange func(Event)) Handle {
	if onChange == nil {
		onChange = func(Event) {}
	}
	topic := Topic{Table: table, Filter: filter}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ""
	}

	sub, ok := m.subs[topic]
	if !ok {
		sub = &subscription{
			topic:     topic,
			consumers: make(map[Handle]func(Event)),
		}
		m.subs[topic] = sub
		m.startLocked(sub, false)
	} else if sub.status == StatusErrored {
		// Consumers of the failed cycle missed events; resync them once reopened.
		m.startLocked(sub, true)
	}

	h := Handle(uuid.NewString())
	sub.consumers[h] = onChange
	sub.order = append(sub.order, h)
	m.handles[h] = sub

	m.logger.Debug("channel consumer attached",
		logger.Component("channel"),
		logger.Topic(topic.String()),
		logger.Count("consumers", len(sub.consumers)),
	)
	return h
}

// Detach removes the consumer behind h. The subscription closes when its
// last consumer leaves. Unknown or repeated handles are ignored.
func (m *Manager) Detach(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.handles[h]
	if !ok {
		return
	}
	delete(m.handles, h)
	delete(sub.consumers, h)
	if i := slices.Index(sub.order, h); i >= 0 {
		sub.order = slices.Delete(sub.order, i, i+1)
	}

	if len(sub.consumers) == 0 {
		m.closeLocked(sub)
	}
}

// DetachAll removes every consumer and closes every subscription.
func (m *Manager) DetachAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachAllLocked()
}

// Status reports the state and consumer count of the subscription for
// (table, filter). Unknown topics are closed with no consumers.
func (m *Manager) Status(table, filter string) (Status, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[Topic{Table: table, Filter: filter}]
	if !ok {
		return StatusClosed, 0
	}
	return sub.status, len(sub.consumers)
}

// Stats returns manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{Subscriptions: len(m.subs), Consumers: len(m.handles)}
	m.mu.Unlock()

	s.Opens = m.stats.opens.Load()
	s.Failures = m.stats.failures.Load()
	s.Reconnects = m.stats.reconnects.Load()
	s.Resyncs = m.stats.resyncs.Load()
	s.Delivered = m.stats.delivered.Load()
	return s
}

// Close detaches everything and waits for connection goroutines to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.detachAllLocked()
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *Manager) detachAllLocked() {
	for _, sub := range m.subs {
		m.closeLocked(sub)
	}
	m.subs = make(map[Topic]*subscription)
	m.handles = make(map[Handle]*subscription)
}

func (m *Manager) closeLocked(sub *subscription) {
	if m.subs[sub.topic] == sub {
		delete(m.subs, sub.topic)
	}
	sub.status = StatusClosed
	for _, h := range sub.order {
		delete(m.handles, h)
	}
	sub.consumers = make(map[Handle]func(Event))
	sub.order = nil
	if sub.cancel != nil {
		sub.cancel()
		sub.cancel = nil
	}

	m.logger.Debug("channel subscription closed",
		logger.Component("channel"),
		logger.Topic(sub.topic.String()),
	)
}

func (m *Manager) startLocked(sub *subscription, resync bool) {
	if sub.cancel != nil {
		sub.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub.cancel = cancel
	sub.status = StatusConnecting

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, sub, resync)
	}()
}

// run connects sub and keeps it connected until ctx ends or the retry
// budget is exhausted. With resync set the first open emits OpResync.
func (m *Manager) run(ctx context.Context, sub *subscription, resync bool) {
	b := m.newBackOff(ctx)
	opened := false
	failed := resync

	for {
		attempt := 0
		var conn Subscription
		err := backoff.RetryNotify(func() error {
			attempt++
			s, err := m.transport.Subscribe(ctx, sub.topic, func(ev Event) {
				m.deliver(ctx, sub, ev)
			})
			if err != nil {
				return err
			}
			conn = s
			return nil
		}, b, func(err error, next time.Duration) {
			failed = true
			m.stats.failures.Add(1)
			m.logger.Warn("channel subscribe failed",
				logger.Component("channel"),
				logger.Topic(sub.topic.String()),
				logger.Attempt(attempt),
				logger.Key("retry_in", next),
				logger.Error(err),
			)
		})

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.stats.failures.Add(1)
			m.fail(ctx, sub, attempt, err)
			return
		}

		if !m.setStatus(ctx, sub, StatusOpen) {
			_ = conn.Close()
			return
		}
		m.stats.opens.Add(1)
		m.logger.Debug("channel subscription open",
			logger.Component("channel"),
			logger.Topic(sub.topic.String()),
			logger.Attempt(attempt),
		)

		if opened || failed {
			if opened {
				m.stats.reconnects.Add(1)
			}
			m.stats.resyncs.Add(1)
			m.deliver(ctx, sub, Event{Operation: OpResync, Err: ErrSubscriptionDesync})
		}
		opened = true
		failed = false
		b.Reset()

		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-conn.Done():
		}

		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("channel subscription dropped",
			logger.Component("channel"),
			logger.Topic(sub.topic.String()),
			logger.Error(conn.Err()),
		)
		if !m.setStatus(ctx, sub, StatusConnecting) {
			return
		}
	}
}

func (m *Manager) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.initialInterval
	exp.MaxInterval = m.maxInterval
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithContext(exp, ctx)
	if m.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(m.maxAttempts-1))
	}
	return b
}

func (m *Manager) fail(ctx context.Context, sub *subscription, attempts int, err error) {
	if !m.setStatus(ctx, sub, StatusErrored) {
		return
	}
	m.logger.Error("channel subscription errored",
		logger.Component("channel"),
		logger.Topic(sub.topic.String()),
		logger.Attempt(attempts),
		logger.Error(err),
	)
	m.deliver(ctx, sub, Event{Operation: OpError, Err: errors.Join(ErrTransportFailure, err)})
}

// setStatus updates sub unless its connection cycle has been cancelled.
func (m *Manager) setStatus(ctx context.Context, sub *subscription, status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	sub.status = status
	return true
}

// deliver queues ev for the consumers attached when it arrives. Events from
// a cancelled connection cycle are dropped.
func (m *Manager) deliver(ctx context.Context, sub *subscription, ev Event) {
	m.mu.Lock()
	if ctx.Err() != nil || len(sub.order) == 0 {
		m.mu.Unlock()
		return
	}

	ev.Topic = sub.topic
	if ev.Table == "" {
		ev.Table = sub.topic.Table
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	handles := slices.Clone(sub.order)
	sub.dispatch.Push(func() {
		for _, h := range handles {
			m.mu.Lock()
			fn, ok := sub.consumers[h]
			m.mu.Unlock()
			if ok {
				m.stats.delivered.Add(1)
				fn(ev)
			}
		}
	})
	m.mu.Unlock()

	sub.dispatch.Drain()
}
