package query

import "errors"

var (
	ErrNoFetcher     = errors.New("query: no fetcher registered for key")
	ErrEntryNotFound = errors.New("query: entry not found")
	ErrEntryEvicted  = errors.New("query: entry evicted while waiting")
	ErrInvalidFilter = errors.New("query: invalid filter")
	ErrCacheClosed   = errors.New("query: cache is closed")
)
