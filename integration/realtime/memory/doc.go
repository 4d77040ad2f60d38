// Package memory is an in-process change-notification transport.
//
// A Hub implements channel.Transport over pkg/broadcast. Writers publish
// row changes with Publish; every open subscription whose topic matches the
// table, and the topic filter when one is set, receives the event. It backs
// tests and local development where no realtime service is running.
//
//	hub := memory.New()
//	mgr, _ := channel.NewManager(hub)
//	_ = hub.Publish(ctx, memory.Change{
//		Table:     "shipments",
//		Operation: channel.OpUpdate,
//		Record:    map[string]any{"id": 42, "status": "delivered"},
//		Keys:      []string{"42"},
//	})
//
// Disconnect ends every open subscription with ErrDisconnected, which makes
// a channel.Manager reconnect and resynchronize.
package memory
