package livesync

import (
	"context"

	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
)

// Fetcher loads rows for a key on behalf of a session.
type Fetcher interface {
	Fetch(ctx context.Context, sess session.Session, key query.Key) (query.Rows, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, sess session.Session, key query.Key) (query.Rows, error)

func (f FetcherFunc) Fetch(ctx context.Context, sess session.Session, key query.Key) (query.Rows, error) {
	return f(ctx, sess, key)
}
