package identity

import "errors"

var (
	ErrSourceNil      = errors.New("identity: token source is nil")
	ErrNoCredentials  = errors.New("identity: no access token, refresh token or client secret configured")
	ErrMissingSubject = errors.New("identity: token has no subject")
	ErrMalformedToken = errors.New("identity: malformed access token")
)
