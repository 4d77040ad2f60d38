package invalidator

import (
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
)

// Cache is the part of query.Cache the invalidator drives.
type Cache interface {
	InvalidateMatching(pred query.Predicate) []query.Key
	Refresh(key query.Key) bool
	Clear()
	OnEvict(fn func(query.Key)) (remove func())
}

// Channels is the part of channel.Manager the invalidator drives.
type Channels interface {
	Attach(table, filter string, onChange func(channel.Event)) channel.Handle
	Detach(h channel.Handle)
	DetachAll()
}

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithLogger sets the invalidator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invalidator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Invalidator bridges channel events and session changes to the cache.
type Invalidator struct {
	cache    Cache
	channels Channels
	logger   *slog.Logger

	mu      sync.Mutex
	tracked map[string]*tracked
	routes  map[string]map[string]query.Key

	// subject is the accepted identity. switching is set while a transition
	// clears state.
	subject   string
	signedIn  bool
	switching bool

	removeHook func()
	stats      stats
}

type tracked struct {
	key     query.Key
	handles []channel.Handle
}

type stats struct {
	events      atomic.Int64
	invalidated atomic.Int64
	refreshed   atomic.Int64
	resyncs     atomic.Int64
	resets      atomic.Int64
}

// Stats holds invalidator counters.
type Stats struct {
	Tracked     int
	Tables      int
	Events      int64 // one per delivery to a tracked key
	Invalidated int64
	Refreshed   int64
	Resyncs     int64
	Resets      int64
}

// New creates an invalidator and registers it for cache evictions.
func New(cache Cache, channels Channels, opts ...Option) (*Invalidator, error) {
	if cache == nil {
		return nil, ErrCacheNil
	}
	if channels == nil {
		return nil, ErrChannelsNil
	}

	inv := &Invalidator{
		cache:    cache,
		channels: channels,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracked:  make(map[string]*tracked),
		routes:   make(map[string]map[string]query.Key),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.removeHook = cache.OnEvict(inv.Untrack)
	return inv, nil
}

// Track routes change events for every table backing key. Tracking an
// already tracked key is a no-op.
func (inv *Invalidator) Track(key query.Key) {
	id := key.ID()

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if _, ok := inv.tracked[id]; ok {
		return
	}

	t := &tracked{key: key}
	onChange := func(ev channel.Event) { inv.handleEvent(key, id, ev) }
	for _, table := range key.Tables {
		h := inv.channels.Attach(table, TopicFilter(key, table), onChange)
		t.handles = append(t.handles, h)

		if inv.routes[table] == nil {
			inv.routes[table] = make(map[string]query.Key)
		}
		inv.routes[table][id] = key
	}
	inv.tracked[id] = t

	inv.logger.Debug("query key tracked",
		logger.Component("invalidator"),
		logger.QueryKey(id),
	)
}

// Untrack stops routing events for key and releases its channel consumers.
func (inv *Invalidator) Untrack(key query.Key) {
	id := key.ID()

	inv.mu.Lock()
	t, ok := inv.tracked[id]
	if !ok {
		inv.mu.Unlock()
		return
	}
	delete(inv.tracked, id)
	for _, table := range t.key.Tables {
		delete(inv.routes[table], id)
		if len(inv.routes[table]) == 0 {
			delete(inv.routes, table)
		}
	}
	inv.mu.Unlock()

	for _, h := range t.handles {
		inv.channels.Detach(h)
	}

	inv.logger.Debug("query key untracked",
		logger.Component("invalidator"),
		logger.QueryKey(id),
	)
}

// Tracked returns the keys currently routed for table.
func (inv *Invalidator) Tracked(table string) []query.Key {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	ids := make([]string, 0, len(inv.routes[table]))
	for id := range inv.routes[table] {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	keys := make([]query.Key, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, inv.routes[table][id])
	}
	return keys
}

// HandleSession reacts to a session replacement. A nil session or one with a
// different subject clears the cache and detaches all channel subscriptions.
// It reports whether such a reset happened.
func (inv *Invalidator) HandleSession(sess *session.Session) bool {
	subject, signedIn := "", sess != nil
	if signedIn {
		subject = sess.Claims.Subject
	}

	inv.mu.Lock()
	if inv.signedIn == signedIn && inv.subject == subject {
		inv.mu.Unlock()
		return false
	}
	first := !inv.signedIn && inv.subject == "" && len(inv.tracked) == 0
	inv.switching = true
	inv.tracked = make(map[string]*tracked)
	inv.routes = make(map[string]map[string]query.Key)
	inv.mu.Unlock()

	inv.channels.DetachAll()
	inv.cache.Clear()
	inv.stats.resets.Add(1)

	inv.mu.Lock()
	inv.subject = subject
	inv.signedIn = signedIn
	inv.switching = false
	inv.mu.Unlock()

	if !first {
		inv.logger.Info("identity changed, cache reset",
			logger.Component("invalidator"),
			logger.Subject(subject),
		)
	}
	return true
}

// Accepts reports whether sess is the identity the cache currently serves.
func (inv *Invalidator) Accepts(sess session.Session) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.signedIn && !inv.switching && inv.subject == sess.Claims.Subject
}

// Stats returns invalidator counters.
func (inv *Invalidator) Stats() Stats {
	inv.mu.Lock()
	s := Stats{Tracked: len(inv.tracked), Tables: len(inv.routes)}
	inv.mu.Unlock()

	s.Events = inv.stats.events.Load()
	s.Invalidated = inv.stats.invalidated.Load()
	s.Refreshed = inv.stats.refreshed.Load()
	s.Resyncs = inv.stats.resyncs.Load()
	s.Resets = inv.stats.resets.Load()
	return s
}

// Close stops listening for evictions and releases all tracked consumers.
func (inv *Invalidator) Close() error {
	inv.mu.Lock()
	remove := inv.removeHook
	inv.removeHook = nil
	all := inv.tracked
	inv.tracked = make(map[string]*tracked)
	inv.routes = make(map[string]map[string]query.Key)
	inv.mu.Unlock()

	if remove != nil {
		remove()
	}
	for _, t := range all {
		for _, h := range t.handles {
			inv.channels.Detach(h)
		}
	}
	return nil
}

// handleEvent runs for one consumer, so it touches only the key that
// consumer was attached for. Consumers of other keys on the same topic get
// their own delivery.
func (inv *Invalidator) handleEvent(key query.Key, id string, ev channel.Event) {
	inv.stats.events.Add(1)

	switch ev.Operation {
	case channel.OpResync, channel.OpError:
		inv.stats.resyncs.Add(1)
		inv.logger.Info("resynchronizing query",
			logger.Component("invalidator"),
			logger.Table(ev.Table),
			logger.QueryKey(id),
			logger.Operation(string(ev.Operation)),
			logger.Error(ev.Err),
		)
	}

	keys := inv.cache.InvalidateMatching(func(k query.Key) bool { return k.ID() == id })
	inv.stats.invalidated.Add(int64(len(keys)))
	if len(keys) == 0 {
		return
	}
	if inv.cache.Refresh(key) {
		inv.stats.refreshed.Add(1)
	}
}

// TopicFilter returns the channel filter used for table when tracking key.
// Only a single-table key with exactly one equality filter gets a filtered
// topic; everything else listens to the whole table.
func TopicFilter(key query.Key, table string) string {
	if len(key.Tables) != 1 || key.Tables[0] != table || len(key.Filters) != 1 {
		return ""
	}
	f := key.Filters[0]
	if f.Op != query.OpEq {
		return ""
	}
	return f.String()
}
