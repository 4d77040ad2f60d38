package channel

import "errors"

var (
	// ErrTransportFailure wraps connection errors that outlived the retry budget.
	ErrTransportFailure = errors.New("channel: transport failure")
	// ErrSubscriptionDesync marks a reconnect after which events may be missing.
	ErrSubscriptionDesync = errors.New("channel: subscription desynchronized")

	ErrTransportNil  = errors.New("channel: transport is nil")
	ErrManagerClosed = errors.New("channel: manager is closed")
)
