package livesync

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/livesync/core/authz"
	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
)

// Config holds the tunables of every component, loaded from the environment
// with config.Load.
type Config struct {
	Query   query.Config
	Channel channel.Config
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	session  []session.Option
	channel  []channel.Option
	query    []query.Option
	authz    []authz.Option
	navItems []authz.NavigationItem
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithConfig applies cfg to the cache and the channel manager.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.query = append(o.query, query.WithGrace(cfg.Query.Grace), query.WithMaxIdle(cfg.Query.MaxIdle))
		o.channel = append(o.channel,
			channel.WithBackoff(cfg.Channel.InitialInterval, cfg.Channel.MaxInterval),
			channel.WithMaxAttempts(cfg.Channel.MaxAttempts),
		)
	}
}

// WithSessionOptions passes options to the session store.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) { o.session = append(o.session, opts...) }
}

// WithChannelOptions passes options to the channel manager.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(o *options) { o.channel = append(o.channel, opts...) }
}

// WithQueryOptions passes options to the query cache.
func WithQueryOptions(opts ...query.Option) Option {
	return func(o *options) { o.query = append(o.query, opts...) }
}

// WithAuthzOptions passes options to the authorization gate.
func WithAuthzOptions(opts ...authz.Option) Option {
	return func(o *options) { o.authz = append(o.authz, opts...) }
}

// WithNavigation replaces the default navigation used by Navigation.
func WithNavigation(items ...authz.NavigationItem) Option {
	return func(o *options) { o.navItems = items }
}
