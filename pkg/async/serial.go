package async

import "sync"

// Serial is a FIFO dispatcher that runs pushed callbacks one at a time.
// The zero value is ready to use. Callbacks must not panic.
type Serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// Push enqueues fn without running it. Safe to call while holding other locks.
func (s *Serial) Push(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

// Drain runs queued callbacks until the queue is empty.
// If another goroutine is already draining, Drain returns immediately and
// that goroutine runs the pending callbacks.
func (s *Serial) Drain() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true

	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()

		s.mu.Lock()
	}

	s.queue = nil
	s.running = false
	s.mu.Unlock()
}

// Do pushes fn and drains.
func (s *Serial) Do(fn func()) {
	s.Push(fn)
	s.Drain()
}

// Pending reports the number of queued callbacks.
func (s *Serial) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
