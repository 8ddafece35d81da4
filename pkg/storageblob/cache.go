package storageblob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// cachedBlob is the JSON envelope a cached Get result is stored under.
type cachedBlob struct {
	Data []byte `json:"data"`
	Meta Meta   `json:"meta"`
}

// CachedBackend wraps another Backend with a Redis read-through cache
// on Get. Writes and deletes invalidate the affected keys before
// touching the inner backend so a concurrent reader never sees stale
// bytes outlive their blob.
type CachedBackend struct {
	inner Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedBackend connects to Redis per cfg and wraps inner.
func NewCachedBackend(ctx context.Context, inner Backend, cfg Config) (*CachedBackend, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("storageblob: invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("storageblob: connect to redis: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedBackend{inner: inner, redis: client, ttl: ttl}, nil
}

// Close releases the Redis connection. The inner backend is untouched.
func (c *CachedBackend) Close() error {
	return c.redis.Close()
}

func cacheKey(key string) string {
	return "blob:" + key
}

func (c *CachedBackend) Put(ctx context.Context, key string, data []byte, meta Meta) error {
	c.redis.Del(ctx, cacheKey(key))
	return c.inner.Put(ctx, key, data, meta)
}

func (c *CachedBackend) Get(ctx context.Context, key string) ([]byte, Meta, error) {
	if cached, err := c.redis.Get(ctx, cacheKey(key)).Result(); err == nil {
		var blob cachedBlob
		if err := json.Unmarshal([]byte(cached), &blob); err == nil {
			return blob.Data, blob.Meta, nil
		}
		// corrupt entry, drop it and fall through to the backend
		c.redis.Del(ctx, cacheKey(key))
	}

	data, meta, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, Meta{}, err
	}

	if encoded, err := json.Marshal(cachedBlob{Data: data, Meta: meta}); err == nil {
		c.redis.Set(ctx, cacheKey(key), encoded, c.ttl)
	}
	return data, meta, nil
}

func (c *CachedBackend) Delete(ctx context.Context, key string) (bool, error) {
	c.redis.Del(ctx, cacheKey(key))
	return c.inner.Delete(ctx, key)
}

func (c *CachedBackend) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	// Invalidate cached entries under the prefix before the backend
	// forgets which keys existed.
	iter := c.redis.Scan(ctx, 0, cacheKey(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		c.redis.Del(ctx, iter.Val())
	}
	return c.inner.DeleteByPrefix(ctx, prefix)
}

func (c *CachedBackend) Exists(ctx context.Context, key string) (bool, error) {
	if n, err := c.redis.Exists(ctx, cacheKey(key)).Result(); err == nil && n > 0 {
		return true, nil
	}
	return c.inner.Exists(ctx, key)
}

func (c *CachedBackend) Copy(ctx context.Context, from, to string) (bool, error) {
	c.redis.Del(ctx, cacheKey(to))
	return c.inner.Copy(ctx, from, to)
}
