package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
)

const maxErrorBody = 4 << 10

// Fetcher reads rows for query keys from a PostgREST endpoint.
type Fetcher struct {
	base     *url.URL
	apiKey   string
	schema   string
	attempts int
	interval time.Duration
	http     *http.Client
	logger   *slog.Logger
}

// New creates a fetcher for cfg.URL.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Join(ErrInvalidURL, err)
	}

	f := &Fetcher{
		base:     base,
		apiKey:   cfg.APIKey,
		schema:   cfg.Schema,
		attempts: max(cfg.MaxAttempts, 1),
		interval: cfg.RetryInterval,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// URL returns the request URL for key.
func (f *Fetcher) URL(key query.Key) (string, error) {
	table := key.Table()
	if table == "" {
		return "", ErrEmptyTable
	}

	u := *f.base
	u.Path = u.Path + "/rest/v1/" + url.PathEscape(table)
	u.RawQuery = Values(key).Encode()
	return u.String(), nil
}

// Values renders key as PostgREST query parameters.
func Values(key query.Key) url.Values {
	v := url.Values{}
	sel := key.Select
	if sel == "" {
		sel = "*"
	}
	v.Set("select", sel)
	for _, flt := range key.Filters {
		v.Add(flt.Column, string(flt.Op)+"."+flt.Value)
	}
	if len(key.Order) > 0 {
		parts := make([]string, len(key.Order))
		for i, o := range key.Order {
			parts[i] = o.String()
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if key.Limit > 0 {
		v.Set("limit", strconv.Itoa(key.Limit))
	}
	if key.Offset > 0 {
		v.Set("offset", strconv.Itoa(key.Offset))
	}
	return v
}

// Fetch loads the rows for key as sess.
func (f *Fetcher) Fetch(ctx context.Context, sess session.Session, key query.Key) (query.Rows, error) {
	if sess.Token == "" {
		return nil, ErrMissingToken
	}
	target, err := f.URL(key)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	if f.interval > 0 {
		b.InitialInterval = f.interval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.attempts-1)), ctx)

	attempt := 0
	var rows query.Rows
	err = backoff.Retry(func() error {
		attempt++
		r, err := f.do(ctx, target, sess.Token)
		if err == nil {
			rows = r
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		f.logger.DebugContext(ctx, "postgrest fetch failed",
			logger.Component("postgrest"),
			logger.QueryKey(key.String()),
			logger.Attempt(attempt),
			logger.Error(err),
		)
		return err
	}, policy)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *Fetcher) do(ctx context.Context, target, token string) (query.Rows, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if f.apiKey != "" {
		req.Header.Set("apikey", f.apiKey)
	}
	if f.schema != "" {
		req.Header.Set("Accept-Profile", f.schema)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var rows query.Rows
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, errors.Join(ErrDecodeResponse, err)
	}
	if rows == nil {
		rows = query.Rows{}
	}
	return rows, nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRequestFailed)
}

// errorMessage extracts the message field of a PostgREST error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
