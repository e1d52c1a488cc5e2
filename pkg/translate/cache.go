package translate

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Cache stores translated text keyed by content hash. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string)
}

// LRUCache is the default in-process cache: a bounded LRU map.
type LRUCache struct {
	inner *lru.Cache[string, string]
}

// NewLRUCache builds an in-memory cache holding at most capacity entries.
func NewLRUCache(capacity int) (*LRUCache, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	inner, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool) {
	return c.inner.Get(key)
}

func (c *LRUCache) Put(_ context.Context, key, value string) {
	c.inner.Add(key, value)
}

// RedisCache shares translations across engine instances. Misses and Redis
// errors are indistinguishable to the caller: both read as a cache miss,
// so a degraded Redis never breaks the pipeline.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps an existing client. A zero ttl means entries do not
// expire.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "translate:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Put(ctx context.Context, key, value string) {
	_ = c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}
