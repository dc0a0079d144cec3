package cache

import "sync"

// Cache is a thread-safe LRU cache. When a limit is set, inserting past it
// evicts the least recently used entries one at a time.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	lru     lruList[K]
	limit   int
	onEvict func(K, V)

	hits, misses, evictions uint64
}

type entry[K comparable, V any] struct {
	value V
	node  *lruNode[K]
}

// New creates a cache holding at most limit entries. A limit of 0 means
// unlimited.
func New[K comparable, V any](limit int) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		limit:   limit,
	}
}

// OnEvict registers fn to be called, outside the lock, with every entry
// removed by eviction, Delete or Clear.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Get returns the value stored under key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.lru.MoveToFront(e.node)
	return e.value, true
}

// Set stores value under key, replacing and evicting any previous value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	var evicted []entry[K, V]
	if old, ok := c.entries[key]; ok {
		c.lru.Remove(old.node)
		delete(c.entries, key)
		evicted = append(evicted, *old)
	}
	c.insert(key, value)
	evicted = append(evicted, c.trim()...)
	fn := c.onEvict
	c.mu.Unlock()
	notify(fn, evicted)
}

// GetOrCreate returns the cached value for key, calling create on a miss.
// create runs under the lock, so concurrent callers never create the same
// key twice. A create error is returned and nothing is stored.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.lru.MoveToFront(e.node)
		c.mu.Unlock()
		return e.value, nil
	}
	c.misses++
	value, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero V
		return zero, err
	}
	c.insert(key, value)
	evicted := c.trim()
	fn := c.onEvict
	c.mu.Unlock()
	notify(fn, evicted)
	return value, nil
}

// Take removes key and returns its value without calling the eviction
// callback.
func (c *Cache[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.lru.Remove(e.node)
	delete(c.entries, key)
	return e.value, true
}

// Delete removes key. It reports whether the key was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.lru.Remove(e.node)
		delete(c.entries, key)
	}
	fn := c.onEvict
	c.mu.Unlock()
	if ok {
		notify(fn, []entry[K, V]{*e})
	}
	return ok
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	evicted := make([]entry[K, V], 0, len(c.entries))
	for n := c.lru.Oldest(); n != nil; n = n.prev {
		evicted = append(evicted, *c.entries[n.key])
	}
	c.entries = make(map[K]*entry[K, V])
	c.lru = lruList[K]{}
	fn := c.onEvict
	c.mu.Unlock()
	notify(fn, evicted)
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Limit returns the entry limit, 0 for unlimited.
func (c *Cache[K, V]) Limit() int {
	return c.limit
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.entries),
		Limit:     c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// insert adds a new entry. Caller must hold c.mu.
func (c *Cache[K, V]) insert(key K, value V) {
	c.entries[key] = &entry[K, V]{value: value, node: c.lru.PushFront(key)}
}

// trim evicts least recently used entries until the limit holds and
// returns them. Caller must hold c.mu.
func (c *Cache[K, V]) trim() []entry[K, V] {
	if c.limit <= 0 {
		return nil
	}
	var evicted []entry[K, V]
	for len(c.entries) > c.limit {
		oldest := c.lru.Oldest()
		e := c.entries[oldest.key]
		c.lru.Remove(oldest)
		delete(c.entries, oldest.key)
		c.evictions++
		evicted = append(evicted, *e)
	}
	return evicted
}

func notify[K comparable, V any](fn func(K, V), evicted []entry[K, V]) {
	if fn == nil {
		return
	}
	for _, e := range evicted {
		fn(e.node.key, e.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Limit     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if total := s.Hits + s.Misses; total > 0 {
		return float64(s.Hits) / float64(total)
	}
	return 0
}
