package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Deduper claims notification keys with SET NX so concurrent instances
// agree on who sends a given (event, recipient) pair.
type Deduper struct {
	c *redis.Client
}

func NewDeduper(addr string) *Deduper {
	return &Deduper{c: newClient(addr)}
}

func (d *Deduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.c.SetNX(ctx, key, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis dedupe claim")
	}
	return ok, nil
}

func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := d.c.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis dedupe release")
	}
	return nil
}

func (d *Deduper) Close() error { return d.c.Close() }
