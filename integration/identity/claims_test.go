package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/integration/identity"
)

func TestParseClaims(t *testing.T) {
	t.Parallel()

	claims, err := identity.ParseClaims(accessToken(t, jwt.MapClaims{"sub": "u1", "exp": 1700000000}))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])

	_, err = identity.ParseClaims("a.b")
	assert.ErrorIs(t, err, identity.ErrMalformedToken)
}

func TestSessionFromClaims(t *testing.T) {
	t.Parallel()

	t.Run("exp claim", func(t *testing.T) {
		t.Parallel()
		sess, err := identity.SessionFromClaims("tok", "", time.Time{}, map[string]any{
			"sub": "u1",
			"exp": float64(1700000000),
		})
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1700000000, 0), sess.ExpiresAt)
		assert.Equal(t, "viewer", sess.Role())
	})

	t.Run("explicit expiry wins", func(t *testing.T) {
		t.Parallel()
		expiry := time.Unix(1800000000, 0)
		sess, err := identity.SessionFromClaims("tok", "", expiry, map[string]any{
			"sub": "u1",
			"exp": float64(1700000000),
		})
		require.NoError(t, err)
		assert.Equal(t, expiry, sess.ExpiresAt)
	})

	t.Run("string exp is decoded", func(t *testing.T) {
		t.Parallel()
		sess, err := identity.SessionFromClaims("tok", "", time.Time{}, map[string]any{
			"sub": "u1",
			"exp": "1700000000",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), sess.ExpiresAt.Unix())
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		_, err := identity.SessionFromClaims("tok", "", time.Time{}, map[string]any{"email": "a@b.c"})
		assert.ErrorIs(t, err, identity.ErrMissingSubject)
	})
}
