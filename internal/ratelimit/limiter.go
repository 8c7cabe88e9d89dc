package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/matchpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyWebhookClient = "ratelimit:webhook:%s"

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// WebhookLimiter throttles webhook deliveries per client address. A nil or
// disabled limiter allows everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(p Params) (*WebhookLimiter, error) {
	cfg := p.Config.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		if p.Log != nil {
			p.Log.Warn("webhook rate limit enabled without REDIS_ADDR, limiter disabled")
		}
		return nil, nil
	}
	if cfg.WebhookRate <= 0 || cfg.WebhookBurst <= 0 {
		return nil, fmt.Errorf("webhook rate limit must be positive, got rate=%v burst=%d", cfg.WebhookRate, cfg.WebhookBurst)
	}
	return newWebhookLimiter(p.Redis, cfg.WebhookRate, cfg.WebhookBurst), nil
}

func newWebhookLimiter(client redis.Scripter, rate float64, burst int) *WebhookLimiter {
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WebhookLimiter) Allow(ctx context.Context, clientIP string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookClient, clientIP), l.rate, l.burst)
}
