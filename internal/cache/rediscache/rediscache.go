// Package rediscache holds the Redis-backed pieces of ReturnBox: the return
// record cache, dedupe claims, global toggle overrides, the digest buffer and
// the per-recipient mail rate limiter.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func newClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

type ReturnCache struct {
	c *redis.Client
}

func NewReturnCache(addr string) *ReturnCache {
	return &ReturnCache{c: newClient(addr)}
}

func returnKey(id string) string {
	return "return:" + id + ":current"
}

// GetReturn reports ok=false on a miss. An entry that no longer decodes is
// treated as a miss and dropped.
func (r *ReturnCache) GetReturn(ctx context.Context, id string) (*models.ReturnRecord, bool, error) {
	b, err := r.c.Get(ctx, returnKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get return")
	}
	var rec models.ReturnRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		_ = r.c.Del(ctx, returnKey(id)).Err()
		return nil, false, nil
	}
	return &rec, true, nil
}

func (r *ReturnCache) SetReturn(ctx context.Context, rec *models.ReturnRecord, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal return")
	}
	if err := r.c.Set(ctx, returnKey(rec.ID), b, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set return %s", rec.ID)
	}
	return nil
}

func (r *ReturnCache) Invalidate(ctx context.Context, id string) error {
	if err := r.c.Del(ctx, returnKey(id)).Err(); err != nil {
		return errors.Wrapf(err, "redis del return %s", id)
	}
	return nil
}

func (r *ReturnCache) Ping(ctx context.Context) error {
	return errors.Wrap(r.c.Ping(ctx).Err(), "redis ping")
}

func (r *ReturnCache) Close() error { return r.c.Close() }
