package rediscache

import (
	"context"
	"strconv"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const TogglesKey = "notify:toggles"

// Toggles stores platform-wide per-category overrides in a single hash.
type Toggles struct {
	c   *redis.Client
	key string
}

func NewToggles(addr string) *Toggles {
	return &Toggles{c: newClient(addr), key: TogglesKey}
}

func (t *Toggles) Toggle(ctx context.Context, category models.Category) (bool, bool, error) {
	v, err := t.c.HGet(ctx, t.key, string(category)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Wrap(err, "redis toggle get")
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, errors.Wrapf(err, "toggle %s has value %q", category, v)
	}
	return enabled, true, nil
}

func (t *Toggles) SetToggle(ctx context.Context, category models.Category, enabled bool) error {
	if err := t.c.HSet(ctx, t.key, string(category), strconv.FormatBool(enabled)).Err(); err != nil {
		return errors.Wrap(err, "redis toggle set")
	}
	return nil
}

// ClearToggle drops the override so the configured default applies again.
func (t *Toggles) ClearToggle(ctx context.Context, category models.Category) error {
	if err := t.c.HDel(ctx, t.key, string(category)).Err(); err != nil {
		return errors.Wrap(err, "redis toggle clear")
	}
	return nil
}

func (t *Toggles) Overrides(ctx context.Context) (map[models.Category]bool, error) {
	raw, err := t.c.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis toggle list")
	}
	out := make(map[models.Category]bool, len(raw))
	for k, v := range raw {
		b, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		out[models.Category(k)] = b
	}
	return out, nil
}

func (t *Toggles) Close() error { return t.c.Close() }
