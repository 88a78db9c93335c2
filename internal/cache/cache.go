// Package cache holds parsed partials across builds so unchanged files are
// not re-parsed.
package cache

import (
	"container/list"
	"sync"
	"time"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/textutil"

	"github.com/rs/zerolog/log"
)

// LRU is a size-bounded cache with optional per-entry expiry. The zero TTL
// disables expiry. It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[K]*list.Element
	now      func() time.Time

	hits, misses int
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

// NewLRU creates a cache holding at most capacity entries. A capacity below
// one disables caching.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached value for key and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.removeElement(el)
		c.misses++
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	if c.capacity < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expires = expires
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, expires: expires})
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
}

// Delete drops key if present.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len reports the number of cached entries, including expired ones not yet
// evicted.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns hit and miss counts since creation.
func (c *LRU[K, V]) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}

// ParseResult is a cached parser outcome for one file.
type ParseResult struct {
	Partial     *ir.Partial
	Diagnostics []diag.Diagnostic
}

// ParseCache keys parse results by file path and content hash, so an edited
// file always misses.
type ParseCache struct {
	lru *LRU[string, ParseResult]
}

// NewParseCache creates a parse cache of the given size and expiry.
func NewParseCache(capacity int, ttl time.Duration) *ParseCache {
	return &ParseCache{lru: NewLRU[string, ParseResult](capacity, ttl)}
}

func parseKey(file string, src []byte) string {
	return file + "\x00" + textutil.HashBytes(src)
}

// Get returns the cached result for file with content src.
func (c *ParseCache) Get(file string, src []byte) (ParseResult, bool) {
	return c.lru.Get(parseKey(file, src))
}

// Set stores the result for file with content src. Cached partials are
// shared and must not be mutated by callers.
func (c *ParseCache) Set(file string, src []byte, res ParseResult) {
	c.lru.Set(parseKey(file, src), res)
}

// LogStats reports cache effectiveness at debug level.
func (c *ParseCache) LogStats() {
	hits, misses := c.lru.Stats()
	log.Debug().Int("hits", hits).Int("misses", misses).Int("entries", c.lru.Len()).Msg("Parse cache stats")
}
