package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/logger"
)

// Config holds pub/sub settings loaded from the environment.
type Config struct {
	Prefix string `env:"REDIS_CHANNEL_PREFIX" envDefault:"livesync"`
}

// DefaultPrefix is the channel prefix used when none is configured.
const DefaultPrefix = "livesync"

// Message is the JSON body of a change message.
type Message struct {
	Table  string            `json:"table"`
	Type   channel.Operation `json:"type"`
	Keys   []string          `json:"keys,omitempty"`
	Record map[string]any    `json:"record,omitempty"`
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport is a channel.Transport over Redis pub/sub.
type Transport struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

var _ channel.Transport = (*Transport)(nil)

// New creates a transport over client.
func New(client redis.UniversalClient, cfg Config, opts ...Option) (*Transport, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	t := &Transport{
		client: client,
		prefix: cfg.Prefix,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ChannelName returns the pub/sub channel of topic.
func ChannelName(prefix string, topic channel.Topic) string {
	return prefix + ":" + topic.String()
}

// Subscribe subscribes to the topic channel and waits for the confirmation.
func (t *Transport) Subscribe(ctx context.Context, topic channel.Topic, deliver func(channel.Event)) (channel.Subscription, error) {
	name := ChannelName(t.prefix, topic)
	ps := t.client.Subscribe(ctx, name)

	// The first reply is the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime redis: subscribe %s: %w", name, err)
	}

	sub := channel.NewConn(ps.Close)
	msgs := ps.ChannelWithSubscriptions()

	go func() {
		for {
			select {
			case <-sub.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					sub.End(fmt.Errorf("realtime redis: %s: channel closed", name))
					return
				}
				t.handle(name, m, deliver)
			}
		}
	}()

	t.logger.Debug("redis subscription opened",
		logger.Component("realtime.redis"),
		logger.Topic(name),
	)
	return sub, nil
}

func (t *Transport) handle(name string, m any, deliver func(channel.Event)) {
	switch m := m.(type) {
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return
		}
		t.logger.Info("redis subscription restored",
			logger.Component("realtime.redis"),
			logger.Topic(name),
		)
		deliver(channel.Event{Operation: channel.OpResync, Err: channel.ErrSubscriptionDesync})

	case *redis.Message:
		var msg Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			t.logger.Warn("malformed change message",
				logger.Component("realtime.redis"),
				logger.Topic(name),
				logger.Error(err),
			)
			return
		}
		if msg.Type == "" {
			msg.Type = channel.OpUpdate
		}
		deliver(channel.Event{Operation: msg.Type, AffectedKeys: msg.Keys})
	}
}

// Publisher writes change messages.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

// NewPublisher creates a publisher using the same channel layout as Transport.
func NewPublisher(client redis.UniversalClient, cfg Config) (*Publisher, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Publisher{client: client, prefix: cfg.Prefix}, nil
}

// Publish sends msg to the table channel and to the channel of each filter.
func (p *Publisher) Publish(ctx context.Context, msg Message, filters ...string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, ChannelName(p.prefix, channel.Topic{Table: msg.Table}), body)
	for _, f := range filters {
		pipe.Publish(ctx, ChannelName(p.prefix, channel.Topic{Table: msg.Table, Filter: f}), body)
	}
	_, err = pipe.Exec(ctx)
	return err
}
