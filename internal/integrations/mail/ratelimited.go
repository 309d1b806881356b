package mail

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error)
}

var ErrRateLimited = errors.New("recipient rate limit exceeded")

// RateLimited caps messages per recipient per minute. Limiter errors let the send through.
type RateLimited struct {
	next      Transport
	rl        RateLimiter
	perMinute int64
}

func NewRateLimited(next Transport, rl RateLimiter, perMinute int64) *RateLimited {
	return &RateLimited{next: next, rl: rl, perMinute: perMinute}
}

func (r *RateLimited) Send(ctx context.Context, to, from, subject, body string) error {
	if r.rl != nil && r.perMinute > 0 {
		allowed, retryAfter, err := r.rl.Allow(ctx, "rl:mail:"+strings.ToLower(strings.TrimSpace(to)), r.perMinute, time.Minute)
		if err == nil && !allowed {
			return errors.Wrapf(ErrRateLimited, "retry in %s", retryAfter.Round(time.Second))
		}
	}
	return r.next.Send(ctx, to, from, subject, body)
}
