// Package cache provides a process-local TTL cache for recommendation and
// geocoding payloads.
//
// Entries expire lazily: Get returns nothing for an expired entry and evicts it
// on the spot. Because the cache also backs long-running processes, storage is
// a bounded LRU (least recently used entries are dropped when full) and
// StartSweeper can purge expired entries in the background.
//
// The cache is safe for concurrent use.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL = 15 * time.Minute
	// DefaultSize is the LRU capacity used when none is given.
	DefaultSize = 1024
)

// Entry is a cached payload with its absolute expiry.
type Entry struct {
	Key       string
	Data      json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Option configures a TTL cache.
type Option func(*TTL)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *TTL) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSize sets the LRU capacity.
func WithSize(n int) Option {
	return func(c *TTL) {
		if n > 0 {
			c.size = n
		}
	}
}

// TTL is a bounded key→payload store with per-entry expiry.
type TTL struct {
	mu    sync.Mutex
	items *lru.Cache
	size  int
	now   func() time.Time
}

// New builds a TTL cache.
func New(opts ...Option) *TTL {
	c := &TTL{size: DefaultSize, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	items, err := lru.New(c.size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which WithSize rejects.
		panic(err)
	}
	c.items = items
	return c
}

// Set stores data under key until now+ttl. A ttl <= 0 uses DefaultTTL.
func (c *TTL) Set(key string, data json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	c.mu.Lock()
	c.items.Add(key, &Entry{Key: key, Data: data, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	c.mu.Unlock()
}

// Get returns the payload for key while now <= ExpiresAt. An expired entry is
// removed and reported as missing.
func (c *TTL) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*Entry)
	if c.now().After(e.ExpiresAt) {
		c.items.Remove(key)
		return nil, false
	}
	return e.Data, true
}

// Delete removes key if present.
func (c *TTL) Delete(key string) {
	c.mu.Lock()
	c.items.Remove(key)
	c.mu.Unlock()
}

// Clear empties the cache.
func (c *TTL) Clear() {
	c.mu.Lock()
	c.items.Purge()
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// DeleteExpired removes every expired entry and returns how many were dropped.
func (c *TTL) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, k := range c.items.Keys() {
		v, ok := c.items.Peek(k)
		if !ok {
			continue
		}
		if now.After(v.(*Entry).ExpiresAt) {
			c.items.Remove(k)
			n++
		}
	}
	return n
}

// StartSweeper runs DeleteExpired every interval until ctx is done.
func (c *TTL) StartSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.DeleteExpired()
			}
		}
	}()
}
