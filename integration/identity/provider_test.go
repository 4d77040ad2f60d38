package identity_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/livesync/core/session"
	"github.com/dmitrymomot/livesync/integration/identity"
)

var signingKey = []byte("test-signing-key")

func accessToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err)
	return s
}

// sequenceSource hands out tokens in order and repeats the last one.
type sequenceSource struct {
	mu     sync.Mutex
	tokens []*oauth2.Token
	errs   []error
	calls  int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.tokens)-1)
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.tokens[i], nil
}

func (s *sequenceSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sessionLog struct {
	mu       sync.Mutex
	sessions []*session.Session
}

func (l *sessionLog) listen(s *session.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, s)
}

func (l *sessionLog) all() []*session.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*session.Session(nil), l.sessions...)
}

func TestNewTokenProvider_NilSource(t *testing.T) {
	t.Parallel()
	_, err := identity.NewTokenProvider(nil)
	assert.ErrorIs(t, err, identity.ErrSourceNil)
}

func TestTokenProvider_GetSession(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := accessToken(t, jwt.MapClaims{
		"sub":          "user-1",
		"email":        "ops@example.com",
		"exp":          exp.Unix(),
		"role":         "authenticated",
		"app_metadata": map[string]any{"role": "operator"},
	})
	src := &sequenceSource{tokens: []*oauth2.Token{{AccessToken: tok, RefreshToken: "r1"}}}

	p, err := identity.NewTokenProvider(src)
	require.NoError(t, err)

	sess, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.Claims.Subject)
	assert.Equal(t, "ops@example.com", sess.Claims.Email)
	assert.Equal(t, "operator", sess.Role())
	assert.Equal(t, "r1", sess.RefreshToken)
	assert.True(t, exp.Equal(sess.ExpiresAt))
}

func TestTokenProvider_GetSessionErrors(t *testing.T) {
	t.Parallel()

	t.Run("source failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("network down")
		src := &sequenceSource{tokens: []*oauth2.Token{nil}, errs: []error{boom}}
		p, err := identity.NewTokenProvider(src)
		require.NoError(t, err)

		_, err = p.GetSession(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()
		src := &sequenceSource{tokens: []*oauth2.Token{{AccessToken: "not-a-jwt"}}}
		p, err := identity.NewTokenProvider(src)
		require.NoError(t, err)

		_, err = p.GetSession(context.Background())
		assert.ErrorIs(t, err, session.ErrInvalidToken)
		assert.ErrorIs(t, err, identity.ErrMalformedToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		src := &sequenceSource{tokens: []*oauth2.Token{{AccessToken: accessToken(t, jwt.MapClaims{"email": "x@example.com"})}}}
		p, err := identity.NewTokenProvider(src)
		require.NoError(t, err)

		_, err = p.GetSession(context.Background())
		assert.ErrorIs(t, err, identity.ErrMissingSubject)
	})
}

func TestTokenProvider_SignOutAndSignIn(t *testing.T) {
	t.Parallel()

	src := &sequenceSource{tokens: []*oauth2.Token{{AccessToken: accessToken(t, jwt.MapClaims{"sub": "u1"})}}}
	p, err := identity.NewTokenProvider(src)
	require.NoError(t, err)

	var log sessionLog
	unsubscribe := p.OnSessionChange(log.listen)
	defer unsubscribe()

	_, err = p.GetSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.SignOut(context.Background()))
	sess, err := p.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)

	other := &sequenceSource{tokens: []*oauth2.Token{{AccessToken: accessToken(t, jwt.MapClaims{"sub": "u2"})}}}
	require.NoError(t, p.SignIn(context.Background(), other))

	got := log.all()
	require.Len(t, got, 2)
	assert.Nil(t, got[0])
	assert.Equal(t, "u2", got[1].Claims.Subject)
}

func TestTokenProvider_RunRefreshesBeforeExpiry(t *testing.T) {
	t.Parallel()

	first := &oauth2.Token{
		AccessToken: accessToken(t, jwt.MapClaims{"sub": "u1", "v": 1}),
		Expiry:      time.Now().Add(2 * time.Second),
	}
	second := &oauth2.Token{
		AccessToken: accessToken(t, jwt.MapClaims{"sub": "u1", "v": 2}),
		Expiry:      time.Now().Add(time.Hour),
	}
	src := &sequenceSource{tokens: []*oauth2.Token{first, second}}

	p, err := identity.NewTokenProvider(src, identity.WithRefreshLeeway(1900*time.Millisecond))
	require.NoError(t, err)

	var log sessionLog
	p.OnSessionChange(log.listen)

	_, err = p.GetSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, second.AccessToken, log.all()[0].Token)
	assert.Equal(t, 2, src.callCount())

	cancel()
	require.NoError(t, <-done)
}

func TestTokenProvider_RunSignsOutOnRejectedRefresh(t *testing.T) {
	t.Parallel()

	first := &oauth2.Token{
		AccessToken: accessToken(t, jwt.MapClaims{"sub": "u1"}),
		Expiry:      time.Now().Add(time.Second),
	}
	rejected := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, ErrorCode: "invalid_grant"}
	src := &sequenceSource{tokens: []*oauth2.Token{first, nil}, errs: []error{nil, rejected}}

	p, err := identity.NewTokenProvider(src, identity.WithRefreshLeeway(950*time.Millisecond))
	require.NoError(t, err)

	var log sessionLog
	p.OnSessionChange(log.listen)

	_, err = p.GetSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool {
		got := log.all()
		return len(got) == 1 && got[0] == nil
	}, 3*time.Second, 10*time.Millisecond)

	sess, err := p.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()
		_, err := identity.NewFromConfig(context.Background(), identity.Config{})
		assert.ErrorIs(t, err, identity.ErrNoCredentials)
	})

	t.Run("static access token", func(t *testing.T) {
		t.Parallel()
		tok := accessToken(t, jwt.MapClaims{"sub": "svc", "user_metadata": map[string]any{"role": "admin"}})
		p, err := identity.NewFromConfig(context.Background(), identity.Config{AccessToken: tok})
		require.NoError(t, err)

		sess, err := p.GetSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "svc", sess.Claims.Subject)
		assert.Equal(t, "admin", sess.Role())
	})
}
