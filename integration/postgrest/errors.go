package postgrest

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyURL         = errors.New("postgrest: base url is empty")
	ErrInvalidURL       = errors.New("postgrest: invalid base url")
	ErrEmptyTable       = errors.New("postgrest: query key has no table")
	ErrMissingToken     = errors.New("postgrest: session has no access token")
	ErrRequestFailed    = errors.New("postgrest: request failed")
	ErrUnexpectedStatus = errors.New("postgrest: unexpected response status")
	ErrDecodeResponse   = errors.New("postgrest: failed to decode response")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postgrest: status %d", e.StatusCode)
	}
	return fmt.Sprintf("postgrest: status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Temporary reports whether the request may succeed when retried.
// Client errors are permanent.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}
