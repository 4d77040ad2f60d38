package query

import (
	"context"
	"log/slog"
	"time"
)

// Config holds cache settings loaded from the environment.
type Config struct {
	// Grace is how long an entry without subscribers is retained.
	Grace time.Duration `env:"QUERY_CACHE_GRACE" envDefault:"30s"`
	// MaxIdle bounds the number of unsubscribed entries retained at once.
	MaxIdle int `env:"QUERY_CACHE_MAX_IDLE" envDefault:"256"`
}

const (
	DefaultGrace   = 30 * time.Second
	DefaultMaxIdle = 256
)

// Option configures a Cache.
type Option func(*Cache)

// WithGrace sets the idle retention period. Zero evicts as soon as the last
// subscriber leaves.
func WithGrace(d time.Duration) Option {
	return func(c *Cache) { c.grace = max(d, 0) }
}

// WithMaxIdle bounds the idle set. Older idle entries are evicted early when
// the bound is exceeded.
func WithMaxIdle(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxIdle = n
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseContext sets the parent context of every fetch.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Cache) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// NewFromConfig creates a cache from cfg. Explicit options override cfg.
func NewFromConfig(cfg Config, opts ...Option) *Cache {
	return New(append([]Option{WithGrace(cfg.Grace), WithMaxIdle(cfg.MaxIdle)}, opts...)...)
}
