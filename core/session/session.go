package session

import (
	"time"
)

// DefaultRole is assigned when a session carries no role claim.
const DefaultRole = "viewer"

// Claims are the identity claims carried by a session.
type Claims struct {
	Subject string
	Role    string
	Email   string
}

// Session is an authenticated session. It is replaced whole, never updated in place.
type Session struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       Claims
}

// IsExpired reports whether the session expired at or before now.
// A zero ExpiresAt never expires.
func (s Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Valid reports whether the session has a token and has not expired.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && !s.IsExpired(now)
}

// Validate returns ErrInvalidToken for an empty token and
// ErrSessionUnavailable for an expired session.
func (s Session) Validate(now time.Time) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	if s.IsExpired(now) {
		return ErrSessionUnavailable
	}
	return nil
}

// Role returns the role claim, or DefaultRole when it is empty.
func (s Session) Role() string {
	if s.Claims.Role == "" {
		return DefaultRole
	}
	return s.Claims.Role
}

// SameIdentity reports whether a and b belong to the same subject.
// Two absent sessions are the same identity; absent and present are not.
func SameIdentity(a, b *Session) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Claims.Subject == b.Claims.Subject
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (s *Session) equal(o *Session) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.Token == o.Token &&
		s.RefreshToken == o.RefreshToken &&
		s.ExpiresAt.Equal(o.ExpiresAt) &&
		s.Claims == o.Claims
}
