// Package channel manages change-notification subscriptions shared across
// consumers.
//
// A Manager keeps one transport subscription per distinct (table, filter)
// topic. Attach registers a consumer and opens the subscription when the
// first consumer arrives; Detach removes a consumer and closes the
// subscription when the last one leaves:
//
//	m := channel.NewManager(transport, channel.WithLogger(log))
//	defer m.Close()
//
//	h := m.Attach("shipments", "", func(ev channel.Event) {
//		if ev.Operation == channel.OpResync {
//			// events may have been missed, reload everything
//		}
//	})
//	defer m.Detach(h)
//
// Events for one subscription reach its consumers in transport order.
// Nothing is guaranteed across subscriptions.
//
// When the transport drops a subscription the manager reconnects with
// exponential backoff. Missed events are never assumed to be replayed: every
// reconnect produces an OpResync event. When a maximum attempt count is
// configured and exhausted, the subscription becomes errored and consumers
// receive an OpError event wrapping ErrTransportFailure. Attaching to an
// errored topic starts a fresh connection cycle.
package channel
