package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
)

const (
	opGet    = "get"
	opSet    = "set"
	opDelete = "delete"
)

type RedisCache struct {
	c *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{c: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	defer func() { metrics.ObserveCacheRequest(opGet, time.Since(start)) }()

	b, err := r.c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.IncCacheMiss()
			return nil, false, nil
		}
		metrics.IncCacheError(opGet)
		return nil, false, err
	}
	metrics.IncCacheHit()
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer func() { metrics.ObserveCacheRequest(opSet, time.Since(start)) }()

	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics.IncCacheError(opSet)
		return err
	}
	return nil
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { metrics.ObserveCacheRequest(opDelete, time.Since(start)) }()

	if err := r.c.Del(ctx, keys...).Err(); err != nil {
		metrics.IncCacheError(opDelete)
		return err
	}
	return nil
}
