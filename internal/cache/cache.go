// Package cache is a two-tier cache: a bounded in-process store checked first,
// backed by a distributed Redis tier with per-entry TTL. It is a latency
// optimization only; callers must never treat cache contents as a source of
// truth for authorization.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL applies when a caller passes ttl <= 0.
const DefaultTTL = 5 * time.Minute

// Stats is a point-in-time snapshot of cache behavior, for operators.
// RedisConnected flips false when the distributed tier last failed, so
// degraded (local-only) operation is observable.
type Stats struct {
	LocalItems     int
	LocalBytes     int
	LocalHits      uint64
	LocalMisses    uint64
	RemoteHits     uint64
	RemoteMisses   uint64
	RedisConnected bool
}

// Cache layers the local tier over an optional remote tier. Remote failures
// never surface to callers: reads fall through to a miss, writes still land
// locally, and Stats reports the degradation.
type Cache struct {
	local  *localStore
	remote RemoteStore
	prefix string

	localHits    atomic.Uint64
	localMisses  atomic.Uint64
	remoteHits   atomic.Uint64
	remoteMisses atomic.Uint64

	mu             sync.Mutex
	redisConnected bool
}

// New returns a Cache with the given local bounds and remote tier.
// remote may be nil; the cache then runs local-only from the start.
func New(maxItems, maxBytes int, remote RemoteStore, prefix string) *Cache {
	return &Cache{
		local:          newLocalStore(maxItems, maxBytes),
		remote:         remote,
		prefix:         prefix,
		redisConnected: remote != nil,
	}
}

// LocalStore exposes the local tier through the RemoteStore interface.
// Intended for deployments without Redis, where a caller needs an
// authoritative single-copy store and one process is all there is.
func (c *Cache) LocalStore() RemoteStore {
	return localRemoteAdapter{s: c.local}
}

func (c *Cache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get returns the raw value for key, checking the local tier first and
// back-filling it on a remote hit. A remote failure reads as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	k := c.key(key)
	if v, ok := c.local.get(k); ok {
		c.localHits.Add(1)
		return v, true
	}
	c.localMisses.Add(1)
	if c.remote == nil {
		return "", false
	}
	v, found, err := c.remote.Get(ctx, k)
	if err != nil {
		c.setRedisConnected(false)
		return "", false
	}
	c.setRedisConnected(true)
	if !found {
		c.remoteMisses.Add(1)
		return "", false
	}
	c.remoteHits.Add(1)
	c.local.set(k, v, DefaultTTL)
	return v, true
}

// GetJSON unmarshals the cached value for key into dest. Returns false on
// miss or when the stored payload does not match dest's shape.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	v, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(v), dest); err != nil {
		// Shape mismatch: drop the poisoned entry rather than serving it again.
		c.Delete(ctx, key)
		return false
	}
	return true
}

// Set writes value to both tiers with the given TTL. Non-string values are
// JSON-encoded. Returns true if at least the local write landed; a remote
// failure degrades silently.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var payload string
	switch v := value.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		b, err := json.Marshal(value)
		if err != nil {
			log.Printf("cache: marshal %q: %v", key, err)
			return false
		}
		payload = string(b)
	}
	k := c.key(key)
	c.local.set(k, payload, ttl)
	if c.remote != nil {
		if err := c.remote.Set(ctx, k, payload, ttl); err != nil {
			c.setRedisConnected(false)
		} else {
			c.setRedisConnected(true)
		}
	}
	return true
}

// Delete removes key from both tiers. Returns true if either tier held it.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	k := c.key(key)
	existed := c.local.del(k)
	if c.remote != nil {
		if err := c.remote.Del(ctx, k); err != nil {
			c.setRedisConnected(false)
		} else {
			c.setRedisConnected(true)
		}
	}
	return existed
}

// Clear empties the local tier and removes this cache's keys from the remote tier.
func (c *Cache) Clear(ctx context.Context) {
	c.local.clear()
	if c.remote != nil {
		if err := c.remote.DelPrefix(ctx, c.key("")); err != nil {
			c.setRedisConnected(false)
		}
	}
}

// GetStats returns a snapshot of cache counters and connectivity.
func (c *Cache) GetStats() Stats {
	items, bytes := c.local.stats()
	c.mu.Lock()
	connected := c.redisConnected
	c.mu.Unlock()
	return Stats{
		LocalItems:     items,
		LocalBytes:     bytes,
		LocalHits:      c.localHits.Load(),
		LocalMisses:    c.localMisses.Load(),
		RemoteHits:     c.remoteHits.Load(),
		RemoteMisses:   c.remoteMisses.Load(),
		RedisConnected: connected,
	}
}

func (c *Cache) setRedisConnected(up bool) {
	c.mu.Lock()
	c.redisConnected = up
	c.mu.Unlock()
}
