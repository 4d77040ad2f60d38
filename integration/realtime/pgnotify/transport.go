package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/query"
)

// Config holds LISTEN/NOTIFY settings loaded from the environment.
type Config struct {
	Channel string `env:"PGNOTIFY_CHANNEL" envDefault:"livesync_changes"`
}

// DefaultChannel is the notification channel used when none is configured.
const DefaultChannel = "livesync_changes"

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

// Transport is a channel.Transport over LISTEN/NOTIFY.
type Transport struct {
	pool    *pgxpool.Pool
	channel string
	logger  *slog.Logger
}

var _ channel.Transport = (*Transport)(nil)

// New creates a transport over pool.
func New(pool *pgxpool.Pool, cfg Config, opts ...Option) (*Transport, error) {
	if pool == nil {
		return nil, ErrPoolNil
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}

	t := &Transport{
		pool:    pool,
		channel: cfg.Channel,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Subscribe acquires a connection, listens on the channel and delivers
// notifications for topic until the subscription is closed or the
// connection fails.
func (t *Transport) Subscribe(ctx context.Context, topic channel.Topic, deliver func(channel.Event)) (channel.Subscription, error) {
	var filter *query.Filter
	if topic.Filter != "" {
		f, err := query.ParseFilter(topic.Filter)
		if err != nil {
			return nil, fmt.Errorf("pgnotify: topic %s: %w", topic, err)
		}
		filter = &f
	}

	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgnotify: acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{t.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pgnotify: listen: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	sub := channel.NewConn(func() error {
		cancel()
		<-stopped
		return nil
	})

	go func() {
		err := t.listen(listenCtx, conn, topic, filter, deliver)
		closing := listenCtx.Err() != nil
		t.release(conn, closing)
		close(stopped)
		if !closing {
			sub.End(err)
		}
	}()

	t.logger.Debug("pgnotify subscription opened",
		logger.Component("realtime.pgnotify"),
		logger.Topic(topic.String()),
	)
	return sub, nil
}

// release returns a connection that stopped listening cleanly to the pool
// and closes one that failed.
func (t *Transport) release(conn *pgxpool.Conn, clean bool) {
	if clean {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "UNLISTEN *"); err == nil {
			conn.Release()
			return
		}
	}
	_ = conn.Hijack().Close(context.Background())
}

func (t *Transport) listen(ctx context.Context, conn *pgxpool.Conn, topic channel.Topic, filter *query.Filter, deliver func(channel.Event)) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != t.channel {
			continue
		}

		p, err := decodePayload(n.Payload)
		if err != nil {
			t.logger.Warn("malformed change notification",
				logger.Component("realtime.pgnotify"),
				logger.Error(err),
			)
			continue
		}
		if p.Table != topic.Table {
			continue
		}
		if filter != nil && p.Record != nil && !filter.Match(p.Record) {
			continue
		}
		if p.Type == "" {
			p.Type = channel.OpUpdate
		}
		deliver(channel.Event{Operation: p.Type, AffectedKeys: p.Keys})
	}
}

// Notify publishes a change on the transport's channel.
func (t *Transport) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if len(body) > maxPayload {
		return errors.Join(ErrPayloadTooLong, fmt.Errorf("%d bytes", len(body)))
	}
	_, err = t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", t.channel, string(body))
	return err
}
