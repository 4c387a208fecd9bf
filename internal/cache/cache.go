package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxEntries = 500
	DefaultTTL        = 5 * time.Minute
)

// EvictReason records which policy removed an entry
type EvictReason string

const (
	EvictCapacity    EvictReason = "capacity"
	EvictExpired     EvictReason = "expired"
	EvictInvalidated EvictReason = "invalidated"
)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Cache is a bounded LRU store with a fixed per-instance TTL.
// Safe for concurrent use.
type Cache[V any] struct {
	name  string
	max   int
	ttl   time.Duration
	clock clock.Clock

	// onEvict is called after the lock is released
	onEvict func(key string, reason EvictReason)

	mu    sync.Mutex
	items map[string]*list.Element
	// front is most recently used, back is the next eviction candidate
	order *list.List

	hits       uint64
	misses     uint64
	evCapacity uint64
	evExpired  uint64
	evInvalid  uint64

	loads singleflight.Group
}

type Option func(*options)

type options struct {
	max     int
	ttl     time.Duration
	clock   clock.Clock
	onEvict func(key string, reason EvictReason)
}

// WithMaxEntries bounds the number of entries, values below 1 are clamped to 1
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.max = n
	}
}

// WithTTL sets how long an entry stays readable after its last Set.
// A ttl <= 0 disables age expiry, leaving only capacity eviction.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithClock overrides the time source, mostly for tests with clock.NewMock()
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithOnEvict registers a hook that fires for every removed entry
func WithOnEvict(fn func(key string, reason EvictReason)) Option {
	return func(o *options) { o.onEvict = fn }
}

// New creates an empty cache. name identifies the instance in stats and metrics.
func New[V any](name string, opts ...Option) *Cache[V] {
	o := options{
		max:   DefaultMaxEntries,
		ttl:   DefaultTTL,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		name:    name,
		max:     o.max,
		ttl:     o.ttl,
		clock:   o.clock,
		onEvict: o.onEvict,
		items:   make(map[string]*list.Element, o.max),
		order:   list.New(),
	}
}

func (c *Cache[V]) Name() string { return c.name }

// Len returns the number of stored entries, including expired ones not yet removed
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) >= c.ttl
}

// Get returns the value for key when present and not expired.
// A hit marks the entry as most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.clock.Now()

	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, now) {
		c.removeElement(el)
		c.evExpired++
		c.misses++
		c.mu.Unlock()
		c.notify(key, EvictExpired)
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	v := e.value
	c.mu.Unlock()
	return v, true
}

// Peek is Get without touching recency or hit/miss counters
func (c *Cache[V]) Peek(key string) (V, bool) {
	var zero V
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, now) {
		return zero, false
	}
	return e.value, true
}

// Set inserts or overwrites key with a fresh TTL window.
// Inserting a new key into a full cache evicts the least recently used entry first.
func (c *Cache[V]) Set(key string, value V) {
	now := c.clock.Now()

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.insertedAt = now
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return
	}

	var victim string
	evicted := false
	if c.order.Len() >= c.max {
		if back := c.order.Back(); back != nil {
			victim = back.Value.(*entry[V]).key
			c.removeElement(back)
			c.evCapacity++
			evicted = true
		}
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, insertedAt: now})
	c.mu.Unlock()

	if evicted {
		c.notify(victim, EvictCapacity)
	}
}

// Invalidate removes key, reporting whether it was present
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		c.removeElement(el)
		c.evInvalid++
	}
	c.mu.Unlock()

	if ok {
		c.notify(key, EvictInvalidated)
	}
	return ok
}

// InvalidateMatching removes every entry whose key satisfies m and returns how many were removed
func (c *Cache[V]) InvalidateMatching(m Matcher) int {
	if m == nil {
		return 0
	}
	c.mu.Lock()
	var removed []string
	for key, el := range c.items {
		if m(key) {
			c.removeElement(el)
			removed = append(removed, key)
		}
	}
	c.evInvalid += uint64(len(removed))
	c.mu.Unlock()

	for _, key := range removed {
		c.notify(key, EvictInvalidated)
	}
	return len(removed)
}

// Clear empties the cache and returns the number of entries dropped
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	removed := make([]string, 0, len(c.items))
	for key := range c.items {
		removed = append(removed, key)
	}
	c.items = make(map[string]*list.Element, c.max)
	c.order.Init()
	c.evInvalid += uint64(len(removed))
	c.mu.Unlock()

	for _, key := range removed {
		c.notify(key, EvictInvalidated)
	}
	return len(removed)
}

// Sweep removes expired entries without waiting for a read to find them
func (c *Cache[V]) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	now := c.clock.Now()

	c.mu.Lock()
	var removed []string
	// oldest writes are not necessarily at the back since Get reorders, so walk everything
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry[V])
		if c.expired(e, now) {
			c.removeElement(el)
			removed = append(removed, e.key)
		}
		el = prev
	}
	c.evExpired += uint64(len(removed))
	c.mu.Unlock()

	for _, key := range removed {
		c.notify(key, EvictExpired)
	}
	return len(removed)
}

// Janitor runs Sweep every interval until ctx is cancelled. Blocks, run it in a goroutine.
func (c *Cache[V]) Janitor(ctx context.Context, every time.Duration) {
	if every <= 0 || c.ttl <= 0 {
		return
	}
	ticker := c.clock.Ticker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// GetOrLoad returns the cached value for key or calls load to fetch it.
// Concurrent misses for the same key share one load call. load runs with ctx's
// values but not its cancellation, so one caller going away does not fail the
// others waiting on the same key. Errors from load are returned as-is and
// nothing is cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.loads.Do(key, func() (any, error) {
		// another caller may have filled it while we waited on the group
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	// a nil interface V comes back as a nil any
	v, _ := res.(V)
	return v, nil
}

// removeElement must be called with mu held
func (c *Cache[V]) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry[V])
	delete(c.items, e.key)
}

func (c *Cache[V]) notify(key string, reason EvictReason) {
	if c.onEvict != nil {
		c.onEvict(key, reason)
	}
}
