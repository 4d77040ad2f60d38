package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/dmitrymomot/livesync/core/session"
)

type standardClaims struct {
	Subject string `mapstructure:"sub"`
	Email   string `mapstructure:"email"`
	Expiry  int64  `mapstructure:"exp"`
}

// ParseClaims returns the claims of a JWT without verifying its signature.
func ParseClaims(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}
	return claims, nil
}

// SessionFromClaims builds a session from decoded access-token claims.
// expiry overrides the exp claim when it is set.
func SessionFromClaims(accessToken, refreshToken string, expiry time.Time, claims map[string]any) (*session.Session, error) {
	var std standardClaims
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &std,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(claims); err != nil {
		return nil, fmt.Errorf("decode token claims: %w", errors.Join(ErrMalformedToken, err))
	}
	if std.Subject == "" {
		return nil, ErrMissingSubject
	}

	if expiry.IsZero() && std.Expiry > 0 {
		expiry = time.Unix(std.Expiry, 0)
	}

	return &session.Session{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiry,
		Claims: session.Claims{
			Subject: std.Subject,
			Email:   std.Email,
			Role:    session.ResolveRole(claims),
		},
	}, nil
}
