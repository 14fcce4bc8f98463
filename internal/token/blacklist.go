package token

import (
	"context"
	"time"

	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/security"
)

// residualTTL is the blacklist TTL used when a token is already expired at the
// moment of blacklisting, covering clock-skew replay.
const residualTTL = 30 * time.Second

// Blacklist records revoked tokens in the cache, keyed by token hash, with a
// TTL equal to the token's remaining lifetime. An entry never outlives the
// token it revokes.
type Blacklist struct {
	c    *cache.Cache
	nowF func() time.Time
}

// NewBlacklist returns a Blacklist backed by the given cache.
func NewBlacklist(c *cache.Cache) *Blacklist {
	return &Blacklist{
		c:    c,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func blacklistKey(token string) string {
	return "blacklist:" + security.HashToken(token)
}

// Add revokes the token until expiresAt. Idempotent; re-adding an entry just
// rewrites it.
func (b *Blacklist) Add(ctx context.Context, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(b.nowF())
	if ttl <= 0 {
		ttl = residualTTL
	}
	b.c.Set(ctx, blacklistKey(token), "1", ttl)
}

// Contains reports whether the token has been revoked.
func (b *Blacklist) Contains(ctx context.Context, token string) bool {
	_, ok := b.c.Get(ctx, blacklistKey(token))
	return ok
}
