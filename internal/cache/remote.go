package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteStore is the distributed tier behind the local store. Implementations
// must treat a missing key as (found=false, err=nil), not an error.
type RemoteStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// DelPrefix removes every key with the given prefix. Used by Clear.
	DelPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
}

// redisStore implements RemoteStore on go-redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RemoteStore backed by the given Redis client.
func NewRedisStore(client *redis.Client) RemoteStore {
	return &redisStore{client: client}
}

func (r *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisStore) DelPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *redisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
