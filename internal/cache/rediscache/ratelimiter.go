package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per key. The window starts with the
// first hit and is not extended by later ones.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{c: newClient(addr)}
}

// Allow counts one hit against key. When the limit is exceeded retryAfter is
// the time left in the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrapf(err, "redis ratelimit %s", key)
	}
	if incr.Val() <= limit {
		return true, 0, nil
	}
	retryAfter := ttl.Val()
	if retryAfter < 0 {
		retryAfter = window
	}
	return false, retryAfter, nil
}

func (rl *RateLimiter) Close() error { return rl.c.Close() }
