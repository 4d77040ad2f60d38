package channel

import (
	"log/slog"
	"time"
)

// Config holds reconnect settings loaded from the environment.
type Config struct {
	InitialInterval time.Duration `env:"CHANNEL_RECONNECT_INITIAL" envDefault:"500ms"`
	MaxInterval     time.Duration `env:"CHANNEL_RECONNECT_MAX" envDefault:"30s"`
	// MaxAttempts bounds consecutive connection attempts. Zero retries forever.
	MaxAttempts int `env:"CHANNEL_RECONNECT_MAX_ATTEMPTS" envDefault:"0"`
}

const (
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBackoff sets the reconnect interval bounds.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(m *Manager) {
		if initial > 0 {
			m.initialInterval = initial
		}
		if maxInterval > 0 {
			m.maxInterval = maxInterval
		}
	}
}

// WithMaxAttempts bounds consecutive connection attempts per cycle.
// Zero or less retries forever.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) { m.maxAttempts = max(n, 0) }
}

// NewFromConfig creates a manager from cfg. Explicit options override cfg.
func NewFromConfig(transport Transport, cfg Config, opts ...Option) (*Manager, error) {
	base := []Option{
		WithBackoff(cfg.InitialInterval, cfg.MaxInterval),
		WithMaxAttempts(cfg.MaxAttempts),
	}
	return NewManager(transport, append(base, opts...)...)
}
