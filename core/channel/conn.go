package channel

import "sync"

// Conn is a Subscription for transport implementations. The transport calls
// End when the underlying stream fails; consumers call Close.
type Conn struct {
	done    chan struct{}
	once    sync.Once
	onClose func() error

	mu  sync.Mutex
	err error
}

// NewConn creates an open Conn. onClose, when set, runs once on the first
// Close or End.
func NewConn(onClose func() error) *Conn {
	return &Conn{done: make(chan struct{}), onClose: onClose}
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the subscription without an error.
func (c *Conn) Close() error {
	return c.finish(nil)
}

// End ends the subscription with err. Only the first Close or End counts.
func (c *Conn) End(err error) {
	_ = c.finish(err)
}

// Closed reports whether the subscription has ended.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) finish(err error) error {
	var closeErr error
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		if c.onClose != nil {
			closeErr = c.onClose()
		}
		close(c.done)
	})
	return closeErr
}
