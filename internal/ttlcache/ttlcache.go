// Package ttlcache implements a size-bounded in-memory cache with
// per-entry time-to-live expiry.
//
// Entries expire lazily: an expired entry is removed the next time it is
// read, or by an explicit Cleanup sweep. When the cache is full, inserting
// a new key evicts the entry that has been in the cache the longest. This
// is deliberately insertion-age eviction, not LRU: per-entry access stats
// are tracked for diagnostics but never consulted when choosing a victim.
// Overwriting an existing key never evicts.
//
// All methods are safe for concurrent use. A single mutex guards the map;
// the expected entry counts are in the hundreds, so contention is not a
// concern.
package ttlcache

import (
	"strings"
	"sync"
	"time"
)

// Defaults applied when the corresponding option is unset.
const (
	DefaultMaxEntries = 500
	DefaultTTL        = 30 * time.Minute

	// defaultJanitorInterval is used when StartJanitor is called with a
	// non-positive interval.
	defaultJanitorInterval = time.Minute
)

// entry is the internal record for one cached value. Entries never leave
// the cache; Get returns the value, not the entry.
type entry[V any] struct {
	value      V
	createdAt  time.Time
	expiresAt  time.Time
	lastAccess time.Time
	accesses   int64
	size       int64
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Cleanups  int64   `json:"cleanups"`
	HitRate   float64 `json:"hit_rate"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes,omitempty"`
}

// Options configures a Cache. The zero value is usable: it yields a cache
// of DefaultMaxEntries entries with DefaultTTL expiry that stores values
// by assignment.
type Options[V any] struct {
	// MaxEntries bounds the number of entries. Zero or negative means
	// DefaultMaxEntries.
	MaxEntries int
	// DefaultTTL is applied by Set when no per-entry TTL is given. Zero
	// or negative means DefaultTTL.
	DefaultTTL time.Duration
	// Clock overrides the time source. Nil means time.Now. Tests use
	// this to drive expiry deterministically.
	Clock func() time.Time
	// Clone, when set, is applied to values on the way in and out of
	// the cache. It isolates callers from each other when V contains
	// slices or maps. A Clone error turns the operation into a no-op.
	Clone func(V) (V, error)
	// SizeOf, when set, reports an approximate byte size per value for
	// the Stats.SizeBytes counter. It does not bound the cache.
	SizeOf func(V) int64
}

// Cache is a bounded TTL cache from string keys to values of type V.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]

	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
	clone      func(V) (V, error)
	sizeOf     func(V) int64

	hits      int64
	misses    int64
	sets      int64
	evictions int64
	cleanups  int64
	sizeBytes int64
}

// New creates a cache with the given options.
func New[V any](opts Options[V]) *Cache[V] {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Clock,
		clone:      opts.Clone,
		sizeOf:     opts.SizeOf,
	}
}

// Set stores value under key. An optional positive TTL overrides the
// cache default for this entry. Inserting a new key into a full cache
// first evicts the oldest entry by insertion time. Set reports whether
// the value was stored; it returns false for an empty key or when a
// Clone hook fails.
func (c *Cache[V]) Set(key string, value V, ttl ...time.Duration) bool {
	if key == "" {
		return false
	}
	stored := value
	if c.clone != nil {
		var err error
		if stored, err = c.clone(value); err != nil {
			return false
		}
	}

	d := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	if old, exists := c.entries[key]; exists {
		c.sizeBytes -= old.size
	}

	e := &entry[V]{
		value:      stored,
		createdAt:  now,
		expiresAt:  now.Add(d),
		lastAccess: now,
	}
	if c.sizeOf != nil {
		e.size = c.sizeOf(stored)
	}
	c.entries[key] = e
	c.sizeBytes += e.size
	c.sets++
	return true
}

// Get returns the live value stored under key. An expired entry is
// removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return zero, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		c.removeLocked(key, e)
		c.misses++
		c.mu.Unlock()
		return zero, false
	}
	e.accesses++
	e.lastAccess = now
	c.hits++
	value := e.value
	c.mu.Unlock()

	if c.clone != nil {
		cloned, err := c.clone(value)
		if err != nil {
			return zero, false
		}
		return cloned, true
	}
	return value, true
}

// Has reports whether key holds a live entry. Unlike Get it does not
// touch the hit and miss counters, but it does remove an expired entry.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiresAt) {
		c.removeLocked(key, e)
		return false
	}
	return true
}

// Delete removes key and reports whether an entry was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(key, e)
	return true
}

// Clear removes all entries. Counters keep their values; they are
// cumulative over the cache lifetime.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*entry[V])
	c.sizeBytes = 0
	return n
}

// ClearByPrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (c *Cache[V]) ClearByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(key, e)
			n++
		}
	}
	return n
}

// Cleanup removes every expired entry and returns the number removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			c.removeLocked(key, e)
			n++
		}
	}
	c.cleanups++
	return n
}

// StartJanitor launches a background goroutine that runs Cleanup every
// interval. It returns a stop function; calling it more than once is
// safe. A non-positive interval falls back to a one-minute sweep.
func (c *Cache[V]) StartJanitor(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// Len returns the number of live entries, removing any expired ones it
// encounters.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			c.removeLocked(key, e)
		}
	}
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		Cleanups:  c.cleanups,
		Entries:   len(c.entries),
		SizeBytes: c.sizeBytes,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}
	return s
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Ties are broken arbitrarily. Callers hold c.mu.
func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    *entry[V]
	)
	for key, e := range c.entries {
		if oldest == nil || e.createdAt.Before(oldest.createdAt) {
			oldestKey, oldest = key, e
		}
	}
	if oldest == nil {
		return
	}
	c.removeLocked(oldestKey, oldest)
	c.evictions++
}

func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.sizeBytes -= e.size
	delete(c.entries, key)
}
