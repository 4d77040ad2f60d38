// Package pgfetch is a livesync.Fetcher that queries Postgres directly.
//
// BuildQuery turns a query key into a parameterized SELECT with sanitized
// identifiers. Fetch runs it inside a read-only transaction that first
// publishes the session identity the way PostgREST does, so row-level
// security policies written against request.jwt.claim.sub keep working:
//
//	set_config('request.jwt.claims', '{"sub":"...","role":"..."}', true)
//	set_config('request.jwt.claim.sub', '...', true)
//	set_config('request.jwt.claim.role', '...', true)
//
// When Config.Role is set the transaction also switches to that database
// role with SET LOCAL ROLE. A transaction stored in the context with
// pg.WithTx is reused through a savepoint.
//
// Embedded resources such as carriers(name) are a PostgREST feature and are
// rejected by BuildQuery.
package pgfetch
