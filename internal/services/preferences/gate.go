package preferences

import (
	"context"

	"github.com/BearBump/ReturnBox/internal/models"
	"go.uber.org/zap"
)

// ToggleStore holds platform-wide switches keyed by category name.
// defined is false when the store has no switch for the category.
type ToggleStore interface {
	Toggle(ctx context.Context, category models.Category) (enabled bool, defined bool, err error)
}

type StaticToggles map[models.Category]bool

func (s StaticToggles) Toggle(_ context.Context, category models.Category) (bool, bool, error) {
	v, ok := s[category]
	return v, ok, nil
}

// Gate is the platform kill switch, consulted before any per-user resolution.
// Overrides (e.g. Redis, written by admin flows) win over the static defaults.
type Gate struct {
	defaults  StaticToggles
	overrides ToggleStore
	log       *zap.Logger
}

func NewGate(defaults StaticToggles, overrides ToggleStore, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	if defaults == nil {
		defaults = StaticToggles{}
	}
	return &Gate{defaults: defaults, overrides: overrides, log: log}
}

func (g *Gate) IsCategoryEnabled(ctx context.Context, category models.Category) bool {
	if g.overrides != nil {
		enabled, defined, err := g.overrides.Toggle(ctx, category)
		switch {
		case err != nil:
			g.log.Warn("toggle override lookup failed, using config default",
				zap.String("category", string(category)), zap.Error(err))
		case defined:
			return enabled
		}
	}
	enabled, defined, _ := g.defaults.Toggle(ctx, category)
	if !defined {
		return true
	}
	return enabled
}
