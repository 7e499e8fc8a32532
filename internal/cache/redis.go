package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/backstage/services/charity/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrCacheMiss = errors.New("key not found in cache")
	ErrDisabled  = errors.New("cache is disabled")
)

// Cache is the subset of Redis the services rely on
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Enabled() bool
}

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
	}, nil
}

// Enabled reports whether a Redis connection backs the cache
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// SetNX stores a marker only if the key is absent and reports whether it did
func (c *RedisCache) SetNX(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	if !c.Enabled() {
		return false, ErrDisabled
	}

	ok, err := c.client.SetNX(ctx, key, 1, expiration).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to set marker in Redis")
	}
	return ok, nil
}

// Incr increments a counter key
func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	if !c.Enabled() {
		return 0, ErrDisabled
	}

	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to increment counter in Redis")
	}
	return n, nil
}

// Delete removes a key
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete key from Redis")
	}
	return nil
}

// ViewMarkerKey is set once a user's view of an event is recorded
func ViewMarkerKey(eventID, userID uuid.UUID) string {
	return fmt.Sprintf("view:%s:%s", eventID.String(), userID.String())
}

// SearchVersionKey holds the generation number of cached search pages
const SearchVersionKey = "search:version"

// SearchPageKey generates a cache key for a search page under a generation
func SearchPageKey(version int64, fingerprint string) string {
	return fmt.Sprintf("search:%d:%s", version, fingerprint)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.client == nil {
		return nil
	}
	return c.client.Close()
}
