// Package broadcast provides a generic in-process fan-out channel.
//
// A Broadcaster sends each Message to every live Subscriber. Delivery never
// blocks the sender: when a subscriber's buffer is full the message is dropped
// for that subscriber only, and the drop is counted in Stats.
//
//	b := broadcast.NewMemoryBroadcaster[string](64)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	go func() {
//		for msg := range sub.Receive(ctx) {
//			fmt.Println(msg.Data)
//		}
//	}()
//
//	_ = b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"})
//
// Subscriptions are removed when their context is cancelled or Close is
// called. Closing the broadcaster closes every subscriber channel.
package broadcast
