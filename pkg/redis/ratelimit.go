package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter 프로세스 간 공유되는 슬라이딩 윈도 제한 (sorted set)
// ⭐ SSOT: 공유 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Key    string        // 식별자 (예: "api", "api:10.0.0.1")
	Limit  int           // 윈도 내 최대 요청 수
	Window time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
	}
}

// slidingWindow trims the window, counts members and admits one if below the limit.
// KEYS[1]=key, ARGV: now(us), window start(us), limit, window(ms), member
var slidingWindow = redis.NewScript(`
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
	local count = redis.call('ZCARD', KEYS[1])
	local limit = tonumber(ARGV[3])
	if count >= limit then
		return {0, 0}
	end
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return {1, limit - count - 1}
`)

// Allow reports whether one more request fits in the window and how many remain.
// Redis가 꺼져 있으면 항상 허용
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	now := time.Now().UnixMicro()
	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
	res, err := slidingWindow.Run(ctx, r.client.Redis(), []string{key},
		now,
		now-cfg.Window.Microseconds(),
		cfg.Limit,
		cfg.Window.Milliseconds(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", cfg.Key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit %s: unexpected reply %v", cfg.Key, res)
	}
	return res[0] == 1, int(res[1]), nil
}

// Wait polls until the window admits the request or ctx ends
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	poll := cfg.Window / 10
	if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}
	for {
		allowed, _, err := r.Allow(ctx, cfg)
		if err != nil || allowed {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// PerSecond builds a one-second window config from a requests-per-second rate
func PerSecond(key string, rate float64, burst int) RateLimitConfig {
	limit := int(rate)
	if burst > limit {
		limit = burst
	}
	if limit < 1 {
		limit = 1
	}
	return RateLimitConfig{Key: key, Limit: limit, Window: time.Second}
}
