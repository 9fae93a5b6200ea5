package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

// Enabled reports whether the backing client is live
func (c *Cache) Enabled() bool {
	return c.client.Enabled()
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Channel returns the prefixed pub/sub channel name
func (c *Cache) Channel(name string) string {
	return fmt.Sprintf("%s:events:%s", c.prefix, name)
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// SetAndPublish stores the value and announces it on a channel in one pipeline
func (c *Cache) SetAndPublish(ctx context.Context, key string, value interface{}, ttl time.Duration, channel string) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	_, err = c.client.Redis().TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, c.key(key), data, ttl)
		p.Publish(ctx, c.Channel(channel), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache publish failed: %w", err)
	}
	return nil
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// Predefined TTLs
const (
	TTLShort = 1 * time.Minute  // 준비도 상태
	TTLDaily = 24 * time.Hour   // 일별 예측
	TTLWeek  = 7 * 24 * time.Hour
)

// ForecastKey is the cache key of the latest forecast for a horizon
func ForecastKey(horizonDays int) string {
	return fmt.Sprintf("forecast:latest:%dd", horizonDays)
}

// ReadinessKey is the cache key of the latest readiness report
func ReadinessKey() string {
	return "readiness:latest"
}
