package postgrest

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds fetcher settings loaded from the environment.
type Config struct {
	URL           string        `env:"POSTGREST_URL"`
	APIKey        string        `env:"POSTGREST_API_KEY"`
	Schema        string        `env:"POSTGREST_SCHEMA"`
	Timeout       time.Duration `env:"POSTGREST_TIMEOUT" envDefault:"10s"`
	MaxAttempts   int           `env:"POSTGREST_MAX_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"POSTGREST_RETRY_INTERVAL" envDefault:"200ms"`
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client. Config.Timeout is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.http = client
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}
