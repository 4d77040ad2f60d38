package query

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/pkg/async"
)

// Cache maps query keys to entries. It is safe for concurrent use.
type Cache struct {
	grace   time.Duration
	maxIdle int
	logger  *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	idle    *lru.Cache[string, uint64]
	idleGen uint64
	hooks   map[uint64]func(Key)
	nextID  uint64
	closed  bool

	dispatch async.Serial
	stats    stats
}

type entry struct {
	id        string
	key       Key
	status    Status
	rows      Rows
	err       error
	updatedAt time.Time

	fetcher  Fetcher
	cancel   context.CancelFunc
	seq      uint64
	followUp bool

	listeners map[uint64]Listener
	order     []uint64
	idleGen   uint64
	idleTimer *time.Timer
	// dropSettled evicts the entry once its fetch resolves; used when there
	// is no grace period and nobody subscribed.
	dropSettled bool
	settled     chan struct{}
}

type stats struct {
	fetches   atomic.Int64
	coalesced atomic.Int64
	hits      atomic.Int64
	followUps atomic.Int64
	discarded atomic.Int64
	failures  atomic.Int64
	evictions atomic.Int64
}

// Stats holds cache counters.
type Stats struct {
	Entries   int
	Idle      int
	Fetches   int64
	Coalesced int64
	Hits      int64
	FollowUps int64
	Discarded int64
	Failures  int64
	Evictions int64
}

// New creates a cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		grace:   DefaultGrace,
		maxIdle: DefaultMaxIdle,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		baseCtx: context.Background(),
		entries: make(map[string]*entry),
		hooks:   make(map[uint64]func(Key)),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.baseCtx, c.cancel = context.WithCancel(c.baseCtx)
	if c.grace > 0 {
		// The callback can run while c.mu is held, so eviction is finished on
		// a separate goroutine.
		c.idle, _ = lru.NewWithEvict(c.maxIdle, func(id string, gen uint64) {
			go c.expire(id, gen)
		})
	}
	return c
}

// Get returns the entry for key and starts a fetch when the entry is empty,
// stale or failed. A loading entry is returned as is and the caller shares
// the running fetch. A non-nil fetcher replaces the one stored for the key.
func (c *Cache) Get(key Key, fetcher Fetcher) Entry {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry{Key: key, Status: StatusError, Err: ErrCacheClosed}
	}

	e, created := c.entryLocked(key)
	if fetcher != nil {
		e.fetcher = fetcher
	}

	switch e.status {
	case StatusEmpty, StatusStale, StatusError:
		if e.fetcher == nil {
			c.failLocked(e, ErrNoFetcher)
		} else {
			c.startFetchLocked(e)
		}
	case StatusLoading:
		c.stats.coalesced.Add(1)
	case StatusFresh:
		c.stats.hits.Add(1)
	}
	if created && len(e.listeners) == 0 {
		if c.idle == nil && e.status == StatusLoading {
			e.dropSettled = true
		} else {
			c.idleLocked(e)
		}
	}

	snap := e.snapshot()
	c.mu.Unlock()

	c.dispatch.Drain()
	return snap
}

// Peek returns the entry for key without triggering a fetch.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.ID()]
	if !ok {
		return Entry{Key: key, Status: StatusEmpty}, false
	}
	return e.snapshot(), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate marks a fresh entry stale. On a loading entry it schedules one
// follow-up fetch to run after the current one resolves; repeated calls
// before that do not add more.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key.ID()]; ok {
		c.invalidateLocked(e)
	}
	c.mu.Unlock()

	c.dispatch.Drain()
}

// InvalidateMatching invalidates every entry whose key satisfies pred and
// returns the matched keys in canonical order.
func (c *Cache) InvalidateMatching(pred Predicate) []Key {
	if pred == nil {
		return nil
	}

	c.mu.Lock()
	var matched []*entry
	for _, e := range c.entries {
		if pred(e.key) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })

	keys := make([]Key, 0, len(matched))
	for _, e := range matched {
		c.invalidateLocked(e)
		keys = append(keys, e.key)
	}
	c.mu.Unlock()

	c.dispatch.Drain()
	return keys
}

// Refresh refetches key with its stored fetcher when it has subscribers and
// is not fresh or already loading. It reports whether a fetch was started.
func (c *Cache) Refresh(key Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key.ID()]
	started := false
	if ok && !c.closed && len(e.listeners) > 0 && e.fetcher != nil {
		switch e.status {
		case StatusEmpty, StatusStale, StatusError:
			c.startFetchLocked(e)
			started = true
		}
	}
	c.mu.Unlock()

	c.dispatch.Drain()
	return started
}

// Subscribe registers listener for key. The listener is called with the
// current state first and then with every transition. When the last
// listener unsubscribes the entry becomes idle.
func (c *Cache) Subscribe(key Key, listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}

	e, _ := c.entryLocked(key)
	if len(e.listeners) == 0 {
		e.dropSettled = false
		c.wakeLocked(e)
	}

	c.nextID++
	id := c.nextID
	e.listeners[id] = listener
	e.order = append(e.order, id)

	snap := e.snapshot()
	c.dispatch.Push(func() {
		c.mu.Lock()
		_, ok := e.listeners[id]
		c.mu.Unlock()
		if ok {
			listener(snap)
		}
	})
	c.mu.Unlock()

	c.dispatch.Drain()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(e, id) })
	}
}

func (c *Cache) unsubscribe(e *entry, id uint64) {
	c.mu.Lock()
	if _, ok := e.listeners[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(e.listeners, id)
	if i := slices.Index(e.order, id); i >= 0 {
		e.order = slices.Delete(e.order, i, i+1)
	}
	if len(e.listeners) == 0 && c.entries[e.id] == e {
		c.idleLocked(e)
	}
	c.mu.Unlock()

	c.dispatch.Drain()
}

// Wait blocks until key is no longer loading and returns its snapshot.
func (c *Cache) Wait(ctx context.Context, key Key) (Entry, error) {
	id := key.ID()
	for {
		c.mu.Lock()
		e, ok := c.entries[id]
		if !ok {
			c.mu.Unlock()
			return Entry{Key: key, Status: StatusEmpty}, ErrEntryNotFound
		}
		if e.status != StatusLoading {
			snap := e.snapshot()
			c.mu.Unlock()
			return snap, nil
		}
		settled := e.settled
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-settled:
		}

		c.mu.Lock()
		current := c.entries[id]
		c.mu.Unlock()
		if current != e {
			return Entry{Key: key, Status: StatusEmpty}, ErrEntryEvicted
		}
	}
}

// OnEvict registers fn to run after an entry is evicted. Clear does not
// trigger evict hooks.
func (c *Cache) OnEvict(fn func(Key)) (remove func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.hooks[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.hooks, id)
		c.mu.Unlock()
	}
}

// Clear drops every entry. Running fetches are cancelled and their results
// discarded. Each listener receives a final empty snapshot and is removed.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()

	c.dispatch.Drain()
}

// Close clears the cache and rejects further use. Pending grace timers are
// stopped, so a closed cache leaves no goroutines behind.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.clearLocked()
	c.mu.Unlock()

	c.cancel()
	c.dispatch.Drain()
	return nil
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	idle := 0
	if c.idle != nil {
		idle = c.idle.Len()
	}
	c.mu.Unlock()

	return Stats{
		Entries:   n,
		Idle:      idle,
		Fetches:   c.stats.fetches.Load(),
		Coalesced: c.stats.coalesced.Load(),
		Hits:      c.stats.hits.Load(),
		FollowUps: c.stats.followUps.Load(),
		Discarded: c.stats.discarded.Load(),
		Failures:  c.stats.failures.Load(),
		Evictions: c.stats.evictions.Load(),
	}
}

func (c *Cache) entryLocked(key Key) (*entry, bool) {
	id := key.ID()
	if e, ok := c.entries[id]; ok {
		return e, false
	}
	e := &entry{
		id:        id,
		key:       key.normalize(),
		status:    StatusEmpty,
		listeners: make(map[uint64]Listener),
		settled:   make(chan struct{}),
	}
	c.entries[id] = e
	return e, true
}

func (c *Cache) invalidateLocked(e *entry) {
	switch e.status {
	case StatusFresh:
		e.status = StatusStale
		c.notifyLocked(e)
	case StatusLoading:
		e.followUp = true
	}
}

func (c *Cache) startFetchLocked(e *entry) {
	e.seq++
	seq := e.seq
	ctx, cancel := context.WithCancel(c.baseCtx)
	e.cancel = cancel
	e.followUp = false
	e.status = StatusLoading
	c.stats.fetches.Add(1)
	c.notifyLocked(e)

	c.logger.Debug("query fetch started",
		logger.Component("query"),
		logger.QueryKey(e.id),
	)

	fetch := e.fetcher
	start := time.Now()
	async.Exec(ctx, e.key, func(ctx context.Context, key Key) error {
		rows, err := fetch(ctx, key)
		c.resolve(e, seq, rows, err, time.Since(start))
		return err
	})
}

func (c *Cache) resolve(e *entry, seq uint64, rows Rows, err error, took time.Duration) {
	c.mu.Lock()
	if c.entries[e.id] != e || e.seq != seq {
		c.mu.Unlock()
		c.stats.discarded.Add(1)
		c.logger.Debug("discarding superseded fetch result",
			logger.Component("query"),
			logger.QueryKey(e.id),
		)
		return
	}

	e.cancel()
	e.cancel = nil
	if err != nil {
		c.failLocked(e, err)
		c.logger.Warn("query fetch failed",
			logger.Component("query"),
			logger.QueryKey(e.id),
			logger.Duration(took),
			logger.Error(err),
		)
	} else {
		e.status = StatusFresh
		e.rows = rows
		e.err = nil
		e.updatedAt = time.Now()
		c.notifyLocked(e)
		c.logger.Debug("query fetch completed",
			logger.Component("query"),
			logger.QueryKey(e.id),
			logger.Duration(took),
			logger.Count("rows", len(rows)),
		)
	}

	close(e.settled)
	e.settled = make(chan struct{})

	switch {
	case e.followUp:
		c.stats.followUps.Add(1)
		c.startFetchLocked(e)
	case e.dropSettled && len(e.listeners) == 0:
		c.dropLocked(e)
	}
	c.mu.Unlock()

	c.dispatch.Drain()
}

func (c *Cache) failLocked(e *entry, err error) {
	c.stats.failures.Add(1)
	e.status = StatusError
	e.rows = nil
	e.err = err
	e.updatedAt = time.Now()
	c.notifyLocked(e)
}

// notifyLocked queues a snapshot for every current listener of e. Listeners
// removed before delivery are skipped.
func (c *Cache) notifyLocked(e *entry) {
	if len(e.listeners) == 0 {
		return
	}
	snap := e.snapshot()
	ids := slices.Clone(e.order)
	c.dispatch.Push(func() {
		for _, id := range ids {
			c.mu.Lock()
			fn, ok := e.listeners[id]
			c.mu.Unlock()
			if ok {
				fn(snap)
			}
		}
	})
}

// idleLocked starts the grace period of e. Generations come from a
// cache-wide counter so a pending expiry never matches a later entry that
// reuses the same id.
func (c *Cache) idleLocked(e *entry) {
	c.idleGen++
	e.idleGen = c.idleGen
	if c.idle == nil {
		c.dropLocked(e)
		return
	}

	id, gen := e.id, e.idleGen
	e.stopIdleTimer()
	e.idleTimer = time.AfterFunc(c.grace, func() { c.expire(id, gen) })
	c.idle.Add(id, gen)
}

// wakeLocked takes e out of the idle set.
func (c *Cache) wakeLocked(e *entry) {
	c.idleGen++
	e.idleGen = c.idleGen
	e.stopIdleTimer()
	if c.idle != nil {
		c.idle.Remove(e.id)
	}
}

func (c *Cache) expire(id string, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || len(e.listeners) > 0 || e.idleGen != gen {
		c.mu.Unlock()
		return
	}
	c.dropLocked(e)
	if c.idle != nil {
		c.idle.Remove(id)
	}
	c.mu.Unlock()

	c.dispatch.Drain()
}

// dropLocked evicts e and queues the evict hooks.
func (c *Cache) dropLocked(e *entry) {
	delete(c.entries, e.id)
	e.stopIdleTimer()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	close(e.settled)
	c.stats.evictions.Add(1)

	key := e.key
	hooks := make([]func(Key), 0, len(c.hooks))
	for _, id := range slices.Sorted(maps.Keys(c.hooks)) {
		hooks = append(hooks, c.hooks[id])
	}
	c.dispatch.Push(func() {
		for _, fn := range hooks {
			fn(key)
		}
	})

	c.logger.Debug("query entry evicted",
		logger.Component("query"),
		logger.QueryKey(e.id),
	)
}

func (c *Cache) clearLocked() {
	type final struct {
		snap Entry
		fns  []Listener
	}
	var finals []final

	for _, e := range c.entries {
		e.stopIdleTimer()
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		close(e.settled)
		e.seq++

		if len(e.order) > 0 {
			fns := make([]Listener, 0, len(e.order))
			for _, id := range e.order {
				fns = append(fns, e.listeners[id])
			}
			finals = append(finals, final{snap: Entry{Key: e.key, Status: StatusEmpty}, fns: fns})
		}
		e.listeners = make(map[uint64]Listener)
		e.order = nil
	}

	n := len(c.entries)
	c.entries = make(map[string]*entry)
	if c.idle != nil {
		// Purge runs the evict callback for every idle id. Those expiries
		// carry generations no entry created after this point can hold.
		c.idle.Purge()
	}

	if len(finals) > 0 {
		c.dispatch.Push(func() {
			for _, f := range finals {
				for _, fn := range f.fns {
					fn(f.snap)
				}
			}
		})
	}

	if n > 0 {
		c.logger.Info("query cache cleared",
			logger.Component("query"),
			logger.Count("entries", n),
		)
	}
}

func (e *entry) stopIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

func (e *entry) snapshot() Entry {
	return Entry{
		Key:         e.key,
		Rows:        e.rows,
		Status:      e.status,
		Subscribers: len(e.listeners),
		Err:         e.err,
		UpdatedAt:   e.updatedAt,
	}
}
