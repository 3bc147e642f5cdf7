package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/receiptly/receiptly-go/chat"
)

// RedisCache stores the last session listing in Redis so a fresh
// process can render the sidebar before the first round-trip completes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// RedisConfig holds Redis connection configuration for the listing cache.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for cache entries (default: "receiptly:sessions:").
	Prefix string
	// TTL is the cache entry expiry (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
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

	c := newRedisCache(client, cfg.Prefix, cfg.TTL)
	c.owned = true
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewRedisCacheFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return newRedisCache(client, prefix, ttl)
}

func newRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "receiptly:sessions:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

// Load returns the cached listing for userID, or nil when absent.
func (c *RedisCache) Load(ctx context.Context, userID string) ([]chat.Session, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sessions []chat.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal cached sessions: %w", err)
	}
	return sessions, nil
}

// Store replaces the cached listing for userID.
func (c *RedisCache) Store(ctx context.Context, userID string, sessions []chat.Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool when this cache owns the client.
func (c *RedisCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
