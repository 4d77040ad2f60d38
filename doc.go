// Package livesync keeps read-query results in sync with a realtime change
// feed for an authenticated client.
//
// A Client composes five components:
//
//	github.com/dmitrymomot/livesync/core/session     - current session and identity-provider bridge
//	github.com/dmitrymomot/livesync/core/channel     - refcounted realtime subscriptions with reconnect
//	github.com/dmitrymomot/livesync/core/query       - keyed query cache with coalescing and eviction
//	github.com/dmitrymomot/livesync/core/invalidator - routes change events and identity changes to the cache
//	github.com/dmitrymomot/livesync/core/authz       - role capabilities and navigation filtering
//
// Transports and fetchers live under integration/:
//
//	github.com/dmitrymomot/livesync/integration/identity           - oauth2/JWT identity provider
//	github.com/dmitrymomot/livesync/integration/realtime/memory    - in-process change feed
//	github.com/dmitrymomot/livesync/integration/realtime/websocket - Phoenix-protocol realtime socket
//	github.com/dmitrymomot/livesync/integration/realtime/pgnotify  - Postgres LISTEN/NOTIFY
//	github.com/dmitrymomot/livesync/integration/realtime/redis     - Redis pub/sub
//	github.com/dmitrymomot/livesync/integration/postgrest          - PostgREST HTTP fetcher
//	github.com/dmitrymomot/livesync/integration/pgfetch            - direct Postgres fetcher
//
// # Usage
//
//	client, err := livesync.New(provider, transport, fetcher,
//		livesync.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//
//	view := client.Watch(query.NewKey("shipments", query.OrderBy("eta", false)),
//		func(e query.Entry) {
//			// empty, loading, fresh, stale or error
//		},
//	)
//	defer view.Close()
//
// Watch mounts a view: it subscribes to the cache entry, routes change events
// for the key's tables and fetches when needed. Fetches run only for a valid
// session whose identity the cache currently serves; otherwise the entry
// fails with session.ErrSessionUnavailable and Retry fetches again.
//
// When the signed-in subject changes or the user signs out, the cache is
// cleared and every channel subscription is detached before any fetch for
// the new identity starts. Open views are then mounted again.
package livesync
