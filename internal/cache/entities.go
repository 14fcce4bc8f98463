package cache

import (
	"context"
	"time"

	userdomain "studyhub/backend/internal/user/domain"
)

// entityKey composes the deterministic cache key for a named entity.
func entityKey(entity, id string) string {
	return entity + ":" + id
}

// UserTTL bounds how stale a cached user record may be. Authorization always
// re-derives trust from the signed token, so short staleness is acceptable.
const UserTTL = 10 * time.Minute

// UserCache layers typed user-record caching on top of the raw cache.
type UserCache struct {
	c *Cache
}

// NewUserCache returns typed user-record helpers over c.
func NewUserCache(c *Cache) *UserCache {
	return &UserCache{c: c}
}

// CacheUser stores the user record under user:<id>.
func (u *UserCache) CacheUser(ctx context.Context, usr *userdomain.User) {
	if usr == nil || usr.ID == "" {
		return
	}
	u.c.Set(ctx, entityKey("user", usr.ID), usr, UserTTL)
}

// GetCachedUser returns the cached user record for id, or nil on miss.
func (u *UserCache) GetCachedUser(ctx context.Context, id string) *userdomain.User {
	var usr userdomain.User
	if !u.c.GetJSON(ctx, entityKey("user", id), &usr) {
		return nil
	}
	return &usr
}

// ClearUserCache drops the cached record for id, e.g. after a profile or
// verification update.
func (u *UserCache) ClearUserCache(ctx context.Context, id string) {
	u.c.Delete(ctx, entityKey("user", id))
}
