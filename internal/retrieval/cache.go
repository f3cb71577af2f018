package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/examwright/examwright/internal/model"
)

// RedisCache fronts the Retrieval Client with a Redis-backed snippet
// cache, grounded on pkg/session/redis_backend.go's RedisConfig/
// NewRedisBackend shape (default prefix, default pool size, ping on
// construction).
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheConfig mirrors pkg/session.RedisConfig, renamed to the
// retrieval-cache domain.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	PoolSize int
}

func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "examwright:retrieval:"
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// NewRedisCacheFromClient builds a cache from an existing client, used in
// tests against github.com/alicebob/miniredis/v2.
func NewRedisCacheFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "examwright:retrieval:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]model.Snippet, bool) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var snippets []model.Snippet
	if err := json.Unmarshal(data, &snippets); err != nil {
		return nil, false
	}
	return snippets, true
}

func (c *RedisCache) Set(ctx context.Context, key string, snippets []model.Snippet) {
	data, err := json.Marshal(snippets)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.redisKey(key), data, c.ttl)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
