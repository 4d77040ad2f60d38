// Package pgnotify is a channel.Transport over Postgres LISTEN/NOTIFY.
//
// Each subscription holds one pooled connection listening on Config.Channel.
// A trigger publishes row changes as JSON:
//
//	{"table": "shipments", "type": "UPDATE", "keys": ["42"], "record": {...}}
//
// Notifications for other tables are ignored; a topic filter is matched
// against "record" when present. Notify builds the same payload from Go.
//
// NOTIFY is not delivered to a connection that is not listening, so every
// reconnect is followed by a channel manager resync.
package pgnotify
