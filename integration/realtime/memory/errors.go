package memory

import "errors"

var (
	ErrHubClosed    = errors.New("memory hub is closed")
	ErrDisconnected = errors.New("memory hub disconnected the subscription")
	ErrEmptyTable   = errors.New("change has no table")
)
