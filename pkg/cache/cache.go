package cache

import (
	"container/list"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL applies when Set is called with a non-positive ttl
const DefaultTTL = 5 * time.Minute

// Options configures a Cache
type Options struct {
	// MaxEntries bounds the cache; the least recently used entry is
	// evicted first. Zero means unbounded.
	MaxEntries int
	// Now is the clock used for freshness checks
	Now func() time.Time
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
	ttl      time.Duration
	timer    *time.Timer
}

// Cache is an in-memory LRU cache with per-entry TTL
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	maxEntries int
	now        func() time.Time

	// epoch moves on every invalidation so an in-flight fetch that
	// started earlier does not store its result.
	epoch    uint64
	inflight map[string]struct{}
	group    singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a new cache
func New(opts Options) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		items:      map[string]*list.Element{},
		lru:        list.New(),
		maxEntries: opts.MaxEntries,
		now:        now,
		inflight:   map[string]struct{}{},
	}
}

// Set stores a value, replacing any existing entry and its expiry timer
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *Cache) setLocked(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	e := &entry{key: key, value: value, storedAt: c.now(), ttl: ttl}
	e.timer = time.AfterFunc(ttl, func() { c.expire(e) })
	c.items[key] = c.lru.PushFront(e)

	for c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		c.removeElement(c.lru.Back())
		c.evictions.Add(1)
	}
}

// Get returns the value if present and fresh. A stale entry is evicted.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.fresh(e) {
		c.removeElement(el)
		c.misses.Add(1)
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits.Add(1)
	return e.value, true
}

// Has reports whether key holds a fresh value
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	if !c.fresh(el.Value.(*entry)) {
		c.removeElement(el)
		return false
	}
	return true
}

// Delete removes a key and cancels its timer
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.group.Forget(key)
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for key := range c.inflight {
		c.group.Forget(key)
	}
	for _, el := range c.items {
		el.Value.(*entry).timer.Stop()
	}
	c.items = map[string]*list.Element{}
	c.lru.Init()
}

// InvalidatePattern removes every key containing substr and returns how
// many entries were dropped.
func (c *Cache) InvalidatePattern(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for key := range c.inflight {
		if strings.Contains(key, substr) {
			c.group.Forget(key)
		}
	}
	n := 0
	for key, el := range c.items {
		if strings.Contains(key, substr) {
			c.removeElement(el)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, fresh or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the stored keys in sorted order
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns the hit, miss and eviction counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
	}
}

// WithCache returns the cached value for key or calls fetch and stores its
// result for ttl. Concurrent misses on the same key share one fetch.
func WithCache[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	return await[T](ctx, flight(ctx, c, key, ttl, fetch))
}

// Refresh calls fetch regardless of what is cached and stores the result
// for ttl. Like WithCache, the result is dropped when key is invalidated
// while fetch runs, and a fetch already in flight for key is joined.
func Refresh[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	return await[T](ctx, flight(ctx, c, key, ttl, fetch))
}

func flight[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) <-chan singleflight.Result {
	fetchCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(key, func() (any, error) {
		epoch := c.beginFlight(key)
		defer c.endFlight(key)

		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(key, v, ttl, epoch)
		return v, nil
	})
}

func await[T any](ctx context.Context, ch <-chan singleflight.Result) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

func (c *Cache) beginFlight(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[key] = struct{}{}
	return c.epoch
}

func (c *Cache) endFlight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

func (c *Cache) storeIfCurrent(key string, value any, ttl time.Duration, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	c.setLocked(key, value, ttl)
}

func (c *Cache) fresh(e *entry) bool {
	return c.now().Sub(e.storedAt) <= e.ttl
}

func (c *Cache) expire(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[e.key]; ok && el.Value.(*entry) == e {
		c.lru.Remove(el)
		delete(c.items, e.key)
	}
}

// removeElement must be called with mu held
func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	e.timer.Stop()
	c.lru.Remove(el)
	delete(c.items, e.key)
}
