package preferences

import (
	"context"

	"github.com/BearBump/ReturnBox/internal/models"
	"go.uber.org/zap"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Resolver struct {
	users UserStore
	log   *zap.Logger
}

func NewResolver(users UserStore, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{users: users, log: log}
}

// ShouldSend decides whether userID wants category. Lookup failures fall back
// to critical: critical mail goes out anyway, everything else is suppressed.
func (r *Resolver) ShouldSend(ctx context.Context, userID string, category models.Category, critical bool) bool {
	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if models.IsNotFound(err) {
			return false
		}
		r.log.Warn("preference lookup failed",
			zap.String("user_id", userID),
			zap.String("category", string(category)),
			zap.Bool("critical", critical),
			zap.Error(err))
		return critical
	}
	if u == nil {
		return false
	}
	return Wants(u.Prefs, category)
}

// Wants maps a category onto the user's preference fields. Unknown categories are denied.
func Wants(p models.NotificationPreferences, category models.Category) bool {
	switch category {
	case models.CategoryShipmentImmediate:
		return p.ShipmentUpdates == models.ShipmentUpdatesImmediate
	case models.CategoryShipmentDigest:
		return p.ShipmentUpdates == models.ShipmentUpdatesDigest
	case models.CategoryMarketing:
		return p.Marketing
	case models.CategoryAccount:
		return p.Account
	case models.CategoryAdmin:
		return p.Admin
	case models.CategoryTrackingDelivery:
		return p.TrackingDelivery
	case models.CategoryRefundReturn:
		return p.RefundReturn
	case models.CategorySupportTicket:
		return p.SupportTicket
	case models.CategoryCustoms:
		return p.Customs
	default:
		return false
	}
}
