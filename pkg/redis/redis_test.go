package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/pkg/config"
)

func newMini(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewFromRedis(rdb)
}

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() on disabled client = %v", err)
	}
}

func TestNewClient_Enabled(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: true,
			Host:    mr.Host(),
			Port:    mr.Port(),
		},
	}

	client, err := New(cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, client.Enabled())
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := New(&config.Config{Redis: config.RedisConfig{Enabled: true, Host: host, Port: port}})
	assert.Error(t, err)
}

func TestRateLimiter_Disabled(t *testing.T) {
	client, _ := New(&config.Config{})
	limiter := NewRateLimiter(client, "test")

	// When Redis is disabled, all requests should be allowed
	cfg := PerSecond("api", 5, 0)
	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("Expected request to be allowed when Redis disabled")
	}
	if remaining != cfg.Limit {
		t.Errorf("Expected remaining = %d, got %d", cfg.Limit, remaining)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	_, client := newMini(t)
	limiter := NewRateLimiter(client, "fxcast")
	ctx := context.Background()
	cfg := RateLimitConfig{Key: "api", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	// 다른 키는 별도 카운트
	allowed, _, err = limiter.Allow(ctx, RateLimitConfig{Key: "api:other", Limit: 3, Window: time.Minute})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	_, client := newMini(t)
	limiter := NewRateLimiter(client, "fxcast")
	cfg := RateLimitConfig{Key: "busy", Limit: 1, Window: time.Hour}

	require.NoError(t, limiter.Wait(context.Background(), cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx, cfg), context.DeadlineExceeded)
}

func TestPerSecond(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		burst int
		want  int
	}{
		{"rate only", 10, 0, 10},
		{"burst wins", 10, 20, 20},
		{"fractional floor", 0.5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PerSecond("api", tt.rate, tt.burst)
			assert.Equal(t, tt.want, got.Limit)
			assert.Equal(t, time.Second, got.Window)
		})
	}
}

func TestCache_Disabled(t *testing.T) {
	client, _ := New(&config.Config{})
	cache := NewCache(client, "test")
	ctx := context.Background()

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(ctx, "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
	assert.NoError(t, cache.Set(ctx, "key", "v", TTLShort))
	assert.NoError(t, cache.SetAndPublish(ctx, "key", "v", TTLShort, "forecast"))
}

func TestCache_RoundTripAndTTL(t *testing.T) {
	mr, client := newMini(t)
	cache := NewCache(client, "fxcast")
	ctx := context.Background()

	type payload struct {
		Mean float64 `json:"mean"`
	}
	require.NoError(t, cache.Set(ctx, ForecastKey(7), payload{Mean: 1312.5}, TTLDaily))
	assert.True(t, mr.Exists("fxcast:cache:forecast:latest:7d"))

	var got payload
	found, err := cache.Get(ctx, ForecastKey(7), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1312.5, got.Mean)

	mr.FastForward(TTLDaily + time.Second)
	found, err = cache.Get(ctx, ForecastKey(7), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_SetAndPublish(t *testing.T) {
	_, client := newMini(t)
	cache := NewCache(client, "fxcast")
	ctx := context.Background()

	sub := client.Redis().Subscribe(ctx, cache.Channel("forecast"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.SetAndPublish(ctx, ForecastKey(30), map[string]int{"horizon": 30}, TTLWeek, "forecast"))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"horizon":30}`, msg.Payload)
		assert.Equal(t, "fxcast:events:forecast", msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	var got map[string]int
	found, err := cache.Get(ctx, ForecastKey(30), &got)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, cache.Delete(ctx, ForecastKey(30)))
	found, _ = cache.Get(ctx, ForecastKey(30), &got)
	assert.False(t, found)
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{
			name:     "ForecastKey",
			fn:       func() string { return ForecastKey(90) },
			expected: "forecast:latest:90d",
		},
		{
			name:     "ReadinessKey",
			fn:       ReadinessKey,
			expected: "readiness:latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
