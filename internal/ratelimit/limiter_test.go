package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWebhookLimiterDisabled(t *testing.T) {
	limiter, err := NewWebhookLimiter(Params{Config: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewWebhookLimiterWithoutRedisFallsBackToDisabled(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WebhookRate: 1, WebhookBurst: 1}}

	limiter, err := NewWebhookLimiter(Params{Config: cfg, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())
}

func TestNewWebhookLimiterRejectsBadLimits(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WebhookRate: 0, WebhookBurst: 5}}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err := NewWebhookLimiter(Params{Config: cfg, Redis: client, Log: zap.NewNop()})
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(0, 10))
}

func TestScriptReplyConversion(t *testing.T) {
	assert.Equal(t, int64(1), toInt64(int64(1)))
	assert.Equal(t, int64(7), toInt64("7"))
	assert.Equal(t, 2.5, toFloat64("2.5"))
	assert.Equal(t, 3.0, toFloat64(int64(3)))
	assert.Zero(t, toFloat64(nil))
}

func TestWebhookLimiterExhaustsBurst(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping rate limit test, REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping rate limit test, redis unreachable: %v", err)
	}

	limiter := newWebhookLimiter(client, 0.001, 2)
	ip := "test-" + uuid.NewString()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(context.Background(), ip)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(context.Background(), ip)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
}
