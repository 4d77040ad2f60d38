package websocket

import (
	"io"
	"log/slog"
	"time"
)

// Config holds websocket transport settings loaded from the environment.
type Config struct {
	URL         string        `env:"REALTIME_URL"`
	APIKey      string        `env:"REALTIME_API_KEY"`
	Schema      string        `env:"REALTIME_SCHEMA" envDefault:"public"`
	PrimaryKey  string        `env:"REALTIME_PRIMARY_KEY" envDefault:"id"`
	Heartbeat   time.Duration `env:"REALTIME_HEARTBEAT" envDefault:"25s"`
	JoinTimeout time.Duration `env:"REALTIME_JOIN_TIMEOUT" envDefault:"10s"`
}

const (
	DefaultSchema      = "public"
	DefaultPrimaryKey  = "id"
	DefaultHeartbeat   = 25 * time.Second
	DefaultJoinTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Schema == "" {
		c.Schema = DefaultSchema
	}
	if c.PrimaryKey == "" {
		c.PrimaryKey = DefaultPrimaryKey
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	return c
}

// Option configures a Transport.
type Option func(*Transport)

// WithAccessToken sets the source of the user access token sent on join.
// Without it the API key is sent.
func WithAccessToken(fn func() string) Option {
	return func(t *Transport) { t.accessToken = fn }
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
