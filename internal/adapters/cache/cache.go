// Package cache stores computed reliability reports between writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/types"
)

// Sentinel kinds for cache errors.
var (
	ErrCacheMiss = errors.New("report not cached")
	ErrCache     = errors.New("report cache failed")
)

const keyPrefix = "concord:report:"

// ReportCache keeps the latest report per scope until the scope changes.
type ReportCache interface {
	Get(ctx context.Context, scope model.Scope) (*types.Report, error)
	Set(ctx context.Context, scope model.Scope, r *types.Report) error
	Invalidate(ctx context.Context, scope model.Scope) error
	Close() error
}

// Key returns the cache key of a scope.
func Key(scope model.Scope) string {
	return keyPrefix + scope.OrganizationID + ":" + scope.AssessmentID
}

// RedisCache is a ReportCache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect parses url, pings the server and returns a RedisCache.
func Connect(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: redis url must not be empty", ErrCache)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", ErrCache, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", ErrCache, err)
	}
	return NewRedisCache(client, ttl), nil
}

// NewRedisCache wraps an existing client. A non-positive ttl keeps entries
// until they are invalidated.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached report, or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, scope model.Scope) (*types.Report, error) {
	raw, err := c.client.Get(ctx, Key(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrCache, err)
	}
	var r types.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCache, err)
	}
	return &r, nil
}

// Set stores r under the scope key.
func (c *RedisCache) Set(ctx context.Context, scope model.Scope, r *types.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrCache, err)
	}
	if err := c.client.Set(ctx, Key(scope), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrCache, err)
	}
	return nil
}

// Invalidate drops the scope's cached report.
func (c *RedisCache) Invalidate(ctx context.Context, scope model.Scope) error {
	if err := c.client.Del(ctx, Key(scope)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrCache, err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NopCache never holds anything.
type NopCache struct{}

func (NopCache) Get(context.Context, model.Scope) (*types.Report, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, model.Scope, *types.Report) error   { return nil }
func (NopCache) Invalidate(context.Context, model.Scope) error           { return nil }
func (NopCache) Close() error                                            { return nil }
