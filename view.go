package livesync

import (
	"sync"

	"github.com/dmitrymomot/livesync/core/query"
)

// View is a mounted consumer of one query key.
type View struct {
	client   *Client
	key      query.Key
	listener query.Listener

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
}

// Key returns the watched key.
func (v *View) Key() query.Key { return v.key }

// Entry returns the current entry state.
func (v *View) Entry() query.Entry {
	if e, ok := v.client.cache.Peek(v.key); ok {
		return e
	}
	return query.Entry{Key: v.key, Status: query.StatusEmpty}
}

// Retry fetches the key again.
func (v *View) Retry() query.Entry {
	return v.client.Retry(v.key)
}

// Close unmounts the view. The entry stays cached for the grace period; its
// channel attachments are released when it is evicted.
func (v *View) Close() {
	v.client.release(v)
	v.unmount()
}

// mount subscribes and requests the key. Change events are routed only while
// the cache serves a signed-in identity; the remount after sign-in covers the
// rest. A second mount replaces the first subscription.
func (v *View) mount() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	prev := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	if prev != nil {
		prev()
	}

	listener := v.listener
	if listener == nil {
		listener = func(query.Entry) {}
	}
	unsub := v.client.cache.Subscribe(v.key, listener)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		unsub()
		return
	}
	v.unsubscribe = unsub
	v.mu.Unlock()

	if v.client.serving() {
		v.client.inv.Track(v.key)
	}
	v.client.cache.Get(v.key, v.client.fetch)
}

// park drops the subscription but keeps the view registered for the next
// remount.
func (v *View) park() {
	v.mu.Lock()
	unsub := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (v *View) unmount() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsub := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
