package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Key builds a cache key of the form "provider:<sha1 of parts>".
func Key(provider string, parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, "\x00")))
	return provider + ":" + hex.EncodeToString(h[:])
}

type entry struct {
	val     []byte
	expires time.Time
}

// Tiered keeps recent entries in memory in front of a persistent Cacher.
// Entries expire from memory after ttl; the backing store is pruned separately.
type Tiered struct {
	mu      sync.Mutex
	backing Cacher
	ttl     time.Duration
	max     int
	entries map[string]entry
	now     func() time.Time
}

// NewTiered wraps backing with an in-memory layer holding at most max entries.
// backing may be nil.
func NewTiered(backing Cacher, ttl time.Duration, max int) *Tiered {
	return &Tiered{
		backing: backing,
		ttl:     ttl,
		max:     max,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Tiered) GetCache(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.val, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.backing == nil {
		return nil, false
	}
	val, ok := c.backing.GetCache(ctx, key)
	if ok {
		c.remember(key, val)
	}
	return val, ok
}

func (c *Tiered) SetCache(ctx context.Context, key string, val []byte) error {
	c.remember(key, val)
	if c.backing == nil {
		return nil
	}
	return c.backing.SetCache(ctx, key, val)
}

// Len returns the number of entries held in memory.
func (c *Tiered) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Tiered) remember(key string, val []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.max {
		c.evict(now)
	}
	c.entries[key] = entry{val: val, expires: now.Add(c.ttl)}
}

// evict drops expired entries, then the entry closest to expiry if still full.
func (c *Tiered) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(c.entries) >= c.max && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
