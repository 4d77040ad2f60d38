package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/pkg/broadcast"
)

// Change is a row change published to the hub.
type Change struct {
	Table     string
	Operation channel.Operation
	// Record is the new row, or the old one for deletes. It is matched
	// against topic filters.
	Record map[string]any
	Keys   []string
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscription buffer. Changes published to a
// full subscription are dropped.
func WithBufferSize(n int) Option {
	return func(h *Hub) { h.bufferSize = max(n, 0) }
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Hub is an in-process Transport.
type Hub struct {
	bufferSize int
	logger     *slog.Logger
	broadcast  *broadcast.MemoryBroadcaster[Change]

	mu     sync.Mutex
	conns  map[*channel.Conn]struct{}
	closed bool
}

var _ channel.Transport = (*Hub)(nil)

// New creates a hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		bufferSize: 64,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		conns:      make(map[*channel.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.broadcast = broadcast.NewMemoryBroadcaster[Change](h.bufferSize)
	return h
}

// Subscribe implements channel.Transport.
func (h *Hub) Subscribe(ctx context.Context, topic channel.Topic, deliver func(channel.Event)) (channel.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var match func(Change) bool
	if topic.Filter == "" {
		match = func(c Change) bool { return c.Table == topic.Table }
	} else {
		f, err := query.ParseFilter(topic.Filter)
		if err != nil {
			return nil, fmt.Errorf("memory: topic %s: %w", topic, err)
		}
		match = func(c Change) bool { return c.Table == topic.Table && f.Match(c.Record) }
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := h.broadcast.Subscribe(subCtx)
	conn := channel.NewConn(func() error {
		cancel()
		return sub.Close()
	})
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer h.forget(conn)
		for msg := range sub.Receive(subCtx) {
			if conn.Closed() {
				return
			}
			if !match(msg.Data) {
				continue
			}
			deliver(channel.Event{
				Operation:    msg.Data.Operation,
				AffectedKeys: msg.Data.Keys,
			})
		}
		conn.End(ErrDisconnected)
	}()

	h.logger.Debug("memory subscription opened",
		logger.Component("realtime.memory"),
		logger.Topic(topic.String()),
	)
	return conn, nil
}

// Publish delivers c to every matching subscription.
func (h *Hub) Publish(ctx context.Context, c Change) error {
	if c.Table == "" {
		return ErrEmptyTable
	}
	if c.Operation == "" {
		c.Operation = channel.OpUpdate
	}
	if err := h.broadcast.Broadcast(ctx, broadcast.Message[Change]{Data: c}); err != nil {
		if errors.Is(err, broadcast.ErrBroadcasterClosed) {
			return ErrHubClosed
		}
		return err
	}
	return nil
}

// Disconnect ends every open subscription with ErrDisconnected. New
// subscriptions are accepted afterwards.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	conns := make([]*channel.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.End(ErrDisconnected)
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Stats returns the underlying broadcaster counters.
func (h *Hub) Stats() broadcast.Stats {
	return h.broadcast.Stats()
}

// Close ends all subscriptions and rejects further use.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.Disconnect()
	return h.broadcast.Close()
}

func (h *Hub) forget(c *channel.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}
