// Package redisinvalidation implements the teacher's CacheService
// interface (declared in the original domain/services package but
// never given a concrete body) over go-redis/v9, and adds the
// parent-mtime invalidation spec.md §4.J and §9 call for: every
// NodeCreated/NodeUpdated/NodeDeleted event evicts the cached
// modified-time entry for the node's parent folder.
package redisinvalidation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService mirrors the teacher's domain/services.CacheService
// contract: generic key-value, hash, list, and set primitives over a
// single backing store.
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key string, field string, value interface{}) error
	HGet(ctx context.Context, key string, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	LPush(ctx context.Context, key string, values ...interface{}) error
	RPop(ctx context.Context, key string) (string, error)

	SAdd(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error

	// InvalidateParentMtime evicts the cached mtime entry for parentUUID,
	// satisfying nodeservice.CacheInvalidator.
	InvalidateParentMtime(ctx context.Context, parentUUID string) error
}

// Cache key patterns used by the Node Service.
const (
	ParentMtimeKeyPattern = "parent_mtime:%s" // folder uuid
	SearchResultKeyPrefix = "search:"
)

// Cache durations.
const (
	ParentMtimeTTL  = 30 * time.Minute
	SearchResultTTL = 5 * time.Minute
)

type redisCache struct {
	client *redis.Client
}

// New dials a go-redis/v9 client from a connection URL (redis://...).
func New(url string) (CacheService, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return &redisCache{client: client}, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *redisCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

func (c *redisCache) Increment(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

func (c *redisCache) HSet(ctx context.Context, key string, field string, value interface{}) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

func (c *redisCache) HGet(ctx context.Context, key string, field string) (string, error) {
	return c.client.HGet(ctx, key, field).Result()
}

func (c *redisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

func (c *redisCache) LPush(ctx context.Context, key string, values ...interface{}) error {
	return c.client.LPush(ctx, key, values...).Err()
}

func (c *redisCache) RPop(ctx context.Context, key string) (string, error) {
	return c.client.RPop(ctx, key).Result()
}

func (c *redisCache) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return c.client.SAdd(ctx, key, members...).Err()
}

func (c *redisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.client.SMembers(ctx, key).Result()
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

// InvalidateParentMtime evicts the cached mtime entry for parentUUID.
// Satisfies nodeservice.CacheInvalidator, which nodeservice.Service
// subscribes to every lifecycle event via RegisterCacheInvalidation
// (spec.md §9).
func (c *redisCache) InvalidateParentMtime(ctx context.Context, parentUUID string) error {
	return c.client.Del(ctx, "parent_mtime:"+parentUUID).Err()
}
