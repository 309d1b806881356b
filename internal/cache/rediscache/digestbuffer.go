package rediscache

import (
	"context"
	"encoding/json"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DigestBufferKey = "digest:pending"

// DigestBuffer keeps pending tracking updates in a Redis list so the API and
// the digest worker share one buffer.
type DigestBuffer struct {
	c   *redis.Client
	key string
	log *zap.Logger
}

func NewDigestBuffer(addr, key string) *DigestBuffer {
	if key == "" {
		key = DigestBufferKey
	}
	return &DigestBuffer{c: newClient(addr), key: key, log: zap.NewNop()}
}

func (b *DigestBuffer) WithLogger(log *zap.Logger) *DigestBuffer {
	if log != nil {
		b.log = log
	}
	return b
}

func (b *DigestBuffer) Append(ctx context.Context, u models.TrackingUpdate) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshal tracking update")
	}
	if err := b.c.RPush(ctx, b.key, raw).Err(); err != nil {
		return errors.Wrap(err, "redis rpush")
	}
	return nil
}

// Drain reads and deletes the whole list in one MULTI. Entries that no longer
// decode are dropped and logged.
func (b *DigestBuffer) Drain(ctx context.Context) ([]models.TrackingUpdate, error) {
	pipe := b.c.TxPipeline()
	rng := pipe.LRange(ctx, b.key, 0, -1)
	pipe.Del(ctx, b.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "redis drain")
	}

	items := rng.Val()
	out := make([]models.TrackingUpdate, 0, len(items))
	dropped := 0
	for _, raw := range items {
		var u models.TrackingUpdate
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			dropped++
			b.log.Warn("dropping undecodable digest row", zap.String("key", b.key), zap.Int("bytes", len(raw)), zap.Error(err))
			continue
		}
		out = append(out, u)
	}
	if dropped > 0 {
		b.log.Warn("digest rows lost on drain", zap.String("key", b.key), zap.Int("dropped", dropped), zap.Int("kept", len(out)))
	}
	return out, nil
}

func (b *DigestBuffer) Len(ctx context.Context) (int, error) {
	n, err := b.c.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis llen")
	}
	return int(n), nil
}

func (b *DigestBuffer) Close() error { return b.c.Close() }
