// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// resultCache caches classification results with TTL expiration and LRU
// eviction. Identical messages inside the TTL window reuse the scored
// result instead of re-invoking the model.
//
// Thread Safety: safe for concurrent use.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	ttl     time.Duration
	maxSize int

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key       string
	result    Result
	expiresAt time.Time
}

// newResultCache creates a cache. ttl and maxSize must be > 0.
func newResultCache(ttl time.Duration, maxSize int) *resultCache {
	return &resultCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// cacheKey hashes the message so the map never holds raw user text.
func cacheKey(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// get returns a valid cached result, expiring stale entries lazily.
func (c *resultCache) get(message string) (Result, bool) {
	key := cacheKey(message)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		c.misses.Add(1)
		return Result{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses.Add(1)
		return Result{}, false
	}

	c.lru.MoveToFront(elem)
	c.hits.Add(1)

	result := entry.result
	result.Cached = true
	return result, true
}

// set stores a result, evicting the least recently used entry at capacity.
func (c *resultCache) set(message string, result Result) {
	key := cacheKey(message)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*cacheEntry)
		entry.result = result
		entry.expiresAt = time.Now().Add(c.ttl)
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}

	elem := c.lru.PushFront(&cacheEntry{
		key:       key,
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem
}

// removeElement deletes an entry. Caller must hold the lock.
func (c *resultCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

// stats returns the hit rate and current size.
func (c *resultCache) stats() (hitRate float64, size int) {
	hits := c.hits.Load()
	misses := c.misses.Load()
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.Lock()
	size = c.lru.Len()
	c.mu.Unlock()
	return hitRate, size
}
