package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/lodestone-upload/pkg/config"
	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent
var ErrCacheMiss = errors.New("key not found")

// Cache wraps Redis client for caching operations
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(cfg *config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client
func NewCacheFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Set stores a value with expiration
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value and unmarshals it
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrCacheMiss, key)
		}
		return fmt.Errorf("failed to get value: %w", err)
	}

	return json.Unmarshal([]byte(data), dest)
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// StatusCache keeps snapshots of retired upload sessions so clients can still
// learn the outcome after the in-memory entry is purged.
type StatusCache struct {
	cache  *Cache
	prefix string
	ttl    time.Duration
}

// NewStatusCache creates a status cache with the given key prefix and TTL
func NewStatusCache(cache *Cache, prefix string, ttl time.Duration) *StatusCache {
	return &StatusCache{cache: cache, prefix: prefix, ttl: ttl}
}

func (s *StatusCache) key(token string) string {
	return s.prefix + token
}

// PutSnapshot stores the snapshot under its token
func (s *StatusCache) PutSnapshot(ctx context.Context, snapshot *types.UploadSnapshot) error {
	return s.cache.Set(ctx, s.key(snapshot.Token), snapshot, s.ttl)
}

// GetSnapshot loads a snapshot; ErrCacheMiss when unknown or expired
func (s *StatusCache) GetSnapshot(ctx context.Context, token string) (*types.UploadSnapshot, error) {
	var snapshot types.UploadSnapshot
	if err := s.cache.Get(ctx, s.key(token), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
