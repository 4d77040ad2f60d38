package livesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/livesync/core/authz"
	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/invalidator"
	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
)

// Client wires the session store, channel manager, query cache, invalidator
// and authorization gate.
type Client struct {
	store    *session.Store
	channels *channel.Manager
	cache    *query.Cache
	inv      *invalidator.Invalidator
	gate     *authz.Gate
	fetcher  Fetcher
	logger   *slog.Logger
	now      func() time.Time
	navItems []authz.NavigationItem

	unsubscribe func()

	mu     sync.Mutex
	views  map[*View]struct{}
	closed bool
}

// Stats aggregates component counters.
type Stats struct {
	Cache       query.Stats
	Channels    channel.Stats
	Invalidator invalidator.Stats
	Views       int
}

// New creates a client. Call Start to load the initial session.
func New(provider session.IdentityProvider, transport channel.Transport, fetcher Fetcher, opts ...Option) (*Client, error) {
	if fetcher == nil {
		return nil, ErrFetcherNil
	}

	o := &options{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		navItems: authz.DefaultNavigation(),
	}
	for _, opt := range opts {
		opt(o)
	}

	store, err := session.NewStore(provider, append([]session.Option{
		session.WithLogger(o.logger),
		session.WithClock(o.now),
	}, o.session...)...)
	if err != nil {
		return nil, err
	}

	channels, err := channel.NewManager(transport, append([]channel.Option{
		channel.WithLogger(o.logger),
	}, o.channel...)...)
	if err != nil {
		return nil, err
	}

	gate, err := authz.NewGate(append([]authz.Option{authz.WithLogger(o.logger)}, o.authz...)...)
	if err != nil {
		_ = channels.Close()
		return nil, err
	}

	cache := query.New(append([]query.Option{query.WithLogger(o.logger)}, o.query...)...)

	inv, err := invalidator.New(cache, channels, invalidator.WithLogger(o.logger))
	if err != nil {
		_ = cache.Close()
		_ = channels.Close()
		return nil, err
	}

	c := &Client{
		store:    store,
		channels: channels,
		cache:    cache,
		inv:      inv,
		gate:     gate,
		fetcher:  fetcher,
		logger:   o.logger,
		now:      o.now,
		navItems: o.navItems,
		views:    make(map[*View]struct{}),
	}
	c.unsubscribe = store.OnChange(c.handleSession)
	return c, nil
}

// NewFromConfig creates a client with cfg applied before opts.
func NewFromConfig(provider session.IdentityProvider, transport channel.Transport, fetcher Fetcher, cfg Config, opts ...Option) (*Client, error) {
	return New(provider, transport, fetcher, append([]Option{WithConfig(cfg)}, opts...)...)
}

// Start loads the initial session and begins following provider pushes.
func (c *Client) Start(ctx context.Context) error {
	return c.store.Start(ctx)
}

// Session returns the current session.
func (c *Client) Session() (session.Session, bool) {
	return c.store.Current()
}

// SessionErr returns the error of the initial session fetch, if any.
func (c *Client) SessionErr() error {
	return c.store.Err()
}

// SignOut signs out through the identity provider.
func (c *Client) SignOut(ctx context.Context) error {
	return c.store.SignOut(ctx)
}

// Watch mounts a view of key. listener receives the current entry state and
// every later transition until the view is closed.
func (c *Client) Watch(key query.Key, listener query.Listener) *View {
	v := &View{client: c, key: key, listener: listener}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		v.closed = true
		if listener != nil {
			listener(query.Entry{Key: key, Status: query.StatusError, Err: ErrClientClosed})
		}
		return v
	}
	c.views[v] = struct{}{}
	c.mu.Unlock()

	v.mount()
	return v
}

// Retry fetches key again. It is the manual retry for failed entries.
func (c *Client) Retry(key query.Key) query.Entry {
	return c.cache.Get(key, c.fetch)
}

// Navigation returns the navigation entries visible to the current session.
// Without arguments the configured navigation is filtered.
func (c *Client) Navigation(items ...authz.NavigationItem) []authz.NavigationItem {
	if len(items) == 0 {
		items = c.navItems
	}
	return authz.Filter(c.gate, items, authz.RequiredCapability)
}

// Can reports whether the current session holds capability.
func (c *Client) Can(capability authz.Capability) bool {
	return c.gate.Can(capability)
}

// Capabilities returns the capabilities of the current session.
func (c *Client) Capabilities() []authz.Capability {
	return c.gate.Allowed()
}

// Stats returns component counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	views := len(c.views)
	c.mu.Unlock()

	return Stats{
		Cache:       c.cache.Stats(),
		Channels:    c.channels.Stats(),
		Invalidator: c.inv.Stats(),
		Views:       views,
	}
}

// Close unmounts all views and shuts every component down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	views := make([]*View, 0, len(c.views))
	for v := range c.views {
		views = append(views, v)
	}
	c.views = make(map[*View]struct{})
	c.mu.Unlock()

	for _, v := range views {
		v.unmount()
	}
	c.unsubscribe()

	return errors.Join(
		c.inv.Close(),
		c.cache.Close(),
		c.channels.Close(),
		c.store.Close(),
	)
}

// fetch is the session-gated query.Fetcher every view uses.
func (c *Client) fetch(ctx context.Context, key query.Key) (query.Rows, error) {
	sess, ok := c.store.Current()
	if !ok {
		return nil, session.ErrSessionUnavailable
	}
	if err := sess.Validate(c.now()); err != nil {
		return nil, errors.Join(session.ErrSessionUnavailable, err)
	}
	if !c.inv.Accepts(sess) {
		return nil, errors.Join(session.ErrSessionUnavailable, session.ErrIdentityMismatch)
	}
	return c.fetcher.Fetch(ctx, sess, key)
}

// handleSession runs on the session store's dispatcher for every change.
func (c *Client) handleSession(sess *session.Session) {
	c.gate.Recompute(sess)
	if !c.inv.HandleSession(sess) {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	views := make([]*View, 0, len(c.views))
	for v := range c.views {
		views = append(views, v)
	}
	c.mu.Unlock()

	// Signed out: the cleared keys stay absent until the next sign-in
	// remounts the views.
	if !c.serving() {
		for _, v := range views {
			v.park()
		}
		return
	}

	c.logger.Debug("remounting views after identity change",
		logger.Component("livesync"),
		logger.Count("views", len(views)),
	)
	for _, v := range views {
		v.mount()
	}
}

// serving reports whether the current session is the identity the cache
// serves.
func (c *Client) serving() bool {
	sess, ok := c.store.Current()
	return ok && c.inv.Accepts(sess)
}

func (c *Client) release(v *View) {
	c.mu.Lock()
	delete(c.views, v)
	c.mu.Unlock()
}
