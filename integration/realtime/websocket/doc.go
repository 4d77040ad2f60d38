// Package websocket is a channel.Transport for Phoenix-protocol realtime
// servers that stream Postgres changes, such as Supabase Realtime.
//
// All subscriptions share one socket. Each topic joins the channel
// realtime:<schema>:<table>[:<filter>] with a postgres_changes config and
// receives INSERT, UPDATE and DELETE events for its rows. The socket sends
// a heartbeat every Config.Heartbeat and is dropped when one goes
// unanswered; a dropped socket ends every subscription with an error so the
// channel manager reconnects and resynchronizes. The socket is closed once
// the last subscription leaves.
//
//	t, err := websocket.New(websocket.Config{
//		URL:    "wss://project.supabase.co/realtime/v1/websocket",
//		APIKey: anonKey,
//	}, websocket.WithAccessToken(func() string { return currentToken() }))
package websocket
