package session

import "errors"

var (
	// ErrSessionUnavailable is returned when an authenticated operation runs without a valid session.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrIdentityMismatch marks a session whose subject differs from the one the caller expected.
	ErrIdentityMismatch = errors.New("session identity mismatch")
	// ErrInvalidToken is returned when a session carries an empty or unparsable token.
	ErrInvalidToken = errors.New("invalid session token")

	ErrProviderNil         = errors.New("identity provider is nil")
	ErrStoreNotStarted     = errors.New("session store is not started")
	ErrStoreAlreadyStarted = errors.New("session store is already started")
	ErrStoreClosed         = errors.New("session store is closed")
)
