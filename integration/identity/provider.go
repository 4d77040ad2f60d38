package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/session"
)

// DefaultRefreshLeeway is how long before expiry a token is refreshed.
const DefaultRefreshLeeway = time.Minute

const (
	// idleInterval is how often Run polls when the token has no expiry.
	idleInterval = 5 * time.Minute
	minWait      = 50 * time.Millisecond
)

// Option configures a TokenProvider.
type Option func(*TokenProvider)

// WithVerifier verifies access tokens before their claims are used.
func WithVerifier(v *oidc.IDTokenVerifier) Option {
	return func(p *TokenProvider) { p.verifier = v }
}

// WithRefreshLeeway sets how long before expiry Run refreshes the token.
func WithRefreshLeeway(d time.Duration) Option {
	return func(p *TokenProvider) {
		if d > 0 {
			p.leeway = d
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *TokenProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// TokenProvider is a session.IdentityProvider backed by an oauth2.TokenSource.
type TokenProvider struct {
	verifier *oidc.IDTokenVerifier
	leeway   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	source    oauth2.TokenSource
	current   *session.Session
	signedOut bool
	listeners map[uint64]func(*session.Session)
	order     []uint64
	nextID    uint64
}

var _ session.IdentityProvider = (*TokenProvider)(nil)

// NewTokenProvider wraps source. Tokens are cached and refreshed once they
// are within the refresh leeway of expiry.
func NewTokenProvider(source oauth2.TokenSource, opts ...Option) (*TokenProvider, error) {
	if source == nil {
		return nil, ErrSourceNil
	}

	p := &TokenProvider{
		leeway:    DefaultRefreshLeeway,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		listeners: make(map[uint64]func(*session.Session)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.source = oauth2.ReuseTokenSourceWithExpiry(nil, source, p.leeway)
	return p, nil
}

// GetSession returns the session for the current token, or nil after SignOut.
func (p *TokenProvider) GetSession(ctx context.Context) (*session.Session, error) {
	p.mu.Lock()
	if p.signedOut {
		p.mu.Unlock()
		return nil, nil
	}
	source := p.source
	p.mu.Unlock()

	sess, err := p.load(ctx, source)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signedOut {
		return nil, nil
	}
	p.current = sess
	return sess, nil
}

// OnSessionChange registers listener for refreshed, replaced and ended sessions.
func (p *TokenProvider) OnSessionChange(listener func(*session.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners[id] = listener
	p.order = append(p.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
			if i := slices.Index(p.order, id); i >= 0 {
				p.order = slices.Delete(p.order, i, i+1)
			}
		})
	}
}

// SignOut drops the token and notifies listeners. GetSession returns nil
// until SignIn.
func (p *TokenProvider) SignOut(context.Context) error {
	p.mu.Lock()
	wasSignedIn := p.current != nil
	p.signedOut = true
	p.current = nil
	p.mu.Unlock()

	if wasSignedIn {
		p.notify(nil)
	}
	return nil
}

// SignIn replaces the token source, loads the session and notifies listeners.
func (p *TokenProvider) SignIn(ctx context.Context, source oauth2.TokenSource) error {
	if source == nil {
		return ErrSourceNil
	}
	source = oauth2.ReuseTokenSourceWithExpiry(nil, source, p.leeway)

	sess, err := p.load(ctx, source)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.source = source
	p.signedOut = false
	p.current = sess
	p.mu.Unlock()

	p.notify(sess)
	return nil
}

// Run refreshes the token ahead of expiry until ctx is done. Transient
// refresh failures are retried with backoff; a refresh the token endpoint
// rejects signs out.
func (p *TokenProvider) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	wait := p.untilRefresh()
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		err := p.refresh(ctx)
		switch {
		case err == nil:
			retry.Reset()
			wait = p.untilRefresh()
		case rejected(err):
			p.logger.Warn("token refresh rejected, signing out",
				logger.Component("identity"),
				logger.Error(err),
			)
			_ = p.SignOut(ctx)
			wait = idleInterval
		default:
			wait = retry.NextBackOff()
			p.logger.Warn("token refresh failed",
				logger.Component("identity"),
				logger.Error(err),
				logger.Duration(wait),
			)
		}
	}
}

func (p *TokenProvider) refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.signedOut {
		p.mu.Unlock()
		return nil
	}
	source := p.source
	prev := p.current
	p.mu.Unlock()

	sess, err := p.load(ctx, source)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.signedOut || p.source != source {
		p.mu.Unlock()
		return nil
	}
	p.current = sess
	p.mu.Unlock()

	if prev == nil || prev.Token != sess.Token {
		p.logger.Debug("token refreshed",
			logger.Component("identity"),
			logger.Subject(sess.Claims.Subject),
		)
		p.notify(sess)
	}
	return nil
}

func (p *TokenProvider) untilRefresh() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.current.ExpiresAt.IsZero() {
		return idleInterval
	}
	return max(p.current.ExpiresAt.Sub(p.now())-p.leeway, minWait)
}

func (p *TokenProvider) load(ctx context.Context, source oauth2.TokenSource) (*session.Session, error) {
	tok, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("identity: token: %w", err)
	}

	var claims map[string]any
	if p.verifier != nil {
		verified, err := p.verifier.Verify(ctx, tok.AccessToken)
		if err != nil {
			return nil, errors.Join(session.ErrInvalidToken, err)
		}
		if err := verified.Claims(&claims); err != nil {
			return nil, errors.Join(ErrMalformedToken, err)
		}
	} else {
		claims, err = ParseClaims(tok.AccessToken)
		if err != nil {
			return nil, errors.Join(session.ErrInvalidToken, err)
		}
	}

	return SessionFromClaims(tok.AccessToken, tok.RefreshToken, tok.Expiry, claims)
}

func (p *TokenProvider) notify(sess *session.Session) {
	p.mu.Lock()
	listeners := make([]func(*session.Session), 0, len(p.order))
	for _, id := range p.order {
		listeners = append(listeners, p.listeners[id])
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(sess)
	}
}

// rejected reports whether the token endpoint refused the refresh.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return false
	}
	switch re.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
