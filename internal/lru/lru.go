// Package lru provides a small thread-safe LRU cache with optional expiry.
package lru

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a thread-safe LRU cache. A zero TTL disables expiry.
type Cache[K comparable, V any] struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	keep       func(V) bool

	mu      sync.Mutex
	entries map[K]*entry[K, V]
	head    *entry[K, V] // most recently used
	tail    *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
	prev    *entry[K, V]
	next    *entry[K, V]
}

// New creates a cache holding at most maxEntries values.
func New[K comparable, V any](maxEntries int, ttl time.Duration, clock clockwork.Clock) *Cache[K, V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[K, V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[K]*entry[K, V]),
	}
}

// WithKeep sets a predicate for values that must stay cached. Kept entries
// are never evicted or expired; the cache grows past maxEntries while every
// candidate is kept. keep runs with the cache lock held.
func (c *Cache[K, V]) WithKeep(keep func(V) bool) *Cache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keep = keep
	return c
}

// Get returns the value for key and marks it most recently used. Expired
// entries are dropped and reported as missing.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expires) && !c.kept(e) {
		delete(c.entries, key)
		c.remove(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// GetOrCreate returns the value for key, storing create() first when absent.
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		return e.value
	}
	v := create()
	e := &entry[K, V]{key: key, value: v, expires: c.clock.Now().Add(c.ttl)}
	c.entries[key] = e
	c.addToFront(e)
	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return v
}

// Remove deletes key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache[K, V]) kept(e *entry[K, V]) bool {
	return c.keep != nil && c.keep(e.value)
}

// evictTail drops the least recently used entry that is not kept. The head
// is the entry just inserted and is never a candidate.
func (c *Cache[K, V]) evictTail() {
	for e := c.tail; e != nil && e != c.head; e = e.prev {
		if c.kept(e) {
			continue
		}
		delete(c.entries, e.key)
		c.remove(e)
		return
	}
}
