package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_CheckLimit(t *testing.T) {
	client, _ := newTestRedis(t)
	limiter := NewRateLimiter(client.Client)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		key := LoginKey("192.168.1.100")
		limit := 3
		window := 10 * time.Second

		for i := 0; i < limit; i++ {
			allowed, _ := limiter.CheckLimit(ctx, key, limit, window)
			assert.True(t, allowed, "Request %d should be allowed", i+1)
		}

		allowed, resetAt := limiter.CheckLimit(ctx, key, limit, window)
		assert.False(t, allowed, "Request should be rate limited")
		assert.True(t, resetAt.After(time.Now()), "Reset time should be in future")
	})

	t.Run("different keys are independent", func(t *testing.T) {
		limit := 1
		window := 10 * time.Second

		allowed, _ := limiter.CheckLimit(ctx, LoginKey("10.0.0.1"), limit, window)
		assert.True(t, allowed)
		allowed, _ = limiter.CheckLimit(ctx, LoginKey("10.0.0.1"), limit, window)
		assert.False(t, allowed)

		allowed, _ = limiter.CheckLimit(ctx, APIKey("user-1"), limit, window)
		assert.True(t, allowed)
	})
}

func TestRateLimiter_FailsClosed(t *testing.T) {
	// An unreachable redis denies rather than letting traffic through.
	invalidClient := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer invalidClient.Close()

	limiter := NewRateLimiter(invalidClient)

	allowed, resetAt := limiter.CheckLimit(context.Background(), "login:1.2.3.4", 5, time.Minute)
	require.False(t, allowed)
	require.True(t, resetAt.After(time.Now()))
}
