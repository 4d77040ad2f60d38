// Package query caches read-query results keyed by structural query identity.
//
// A Key describes a read: backing tables, selected columns, filters, ordering
// and pagination. Keys are compared by their canonical ID, so two keys built
// independently with the same parameters share one cache entry.
//
//	key := query.NewKey("shipments",
//		query.Where("status", query.OpEq, "in_transit"),
//		query.OrderBy("eta", false),
//		query.Limit(50),
//	)
//
// Each entry moves through a small state machine:
//
//	empty -> loading -> fresh | error
//	fresh -> stale          (Invalidate while idle)
//	stale -> loading        (Get or Refresh)
//	error -> loading        (Get, manual retry)
//
// At most one fetch runs per key. A Get on a loading entry joins the running
// fetch. Invalidate on a loading entry schedules exactly one follow-up fetch
// that starts as soon as the running one resolves. Results of fetches that
// were superseded by Clear or eviction are discarded.
//
// Listeners registered with Subscribe receive an Entry snapshot for the
// current state and for every later transition, in order. When the last
// listener leaves, the entry is kept for a grace period and then evicted;
// OnEvict hooks run after eviction.
//
// Rows in a snapshot are shared and must be treated as read-only. Decode maps
// them onto typed structs.
package query
