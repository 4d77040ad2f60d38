package query

import (
	"context"
	"time"
)

// Rows is a fetched row collection.
type Rows []map[string]any

// Fetcher loads rows for a key.
type Fetcher func(ctx context.Context, key Key) (Rows, error)

// Listener receives entry snapshots.
type Listener func(Entry)

// Status is the state of a cache entry.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusFresh   Status = "fresh"
	StatusStale   Status = "stale"
	StatusError   Status = "error"
)

// HasRows reports whether entries in this status carry a payload.
func (s Status) HasRows() bool {
	return s == StatusFresh || s == StatusStale
}

// Entry is a point-in-time snapshot of a cache entry.
type Entry struct {
	Key         Key
	Rows        Rows
	Status      Status
	Subscribers int
	Err         error
	UpdatedAt   time.Time
}
