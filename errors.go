package livesync

import "errors"

var (
	ErrFetcherNil   = errors.New("fetcher is nil")
	ErrClientClosed = errors.New("client is closed")
)
