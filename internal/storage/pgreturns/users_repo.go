package pgreturns

import (
	"context"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var role, mode string
	err := s.db.QueryRow(ctx, `
SELECT
  id, email, name, role,
  shipment_updates, pref_marketing, pref_account, pref_admin,
  pref_tracking_delivery, pref_refund_return, pref_support_ticket, pref_customs
FROM users
WHERE id = $1
`, id).Scan(
		&u.ID, &u.Email, &u.Name, &role,
		&mode, &u.Prefs.Marketing, &u.Prefs.Account, &u.Prefs.Admin,
		&u.Prefs.TrackingDelivery, &u.Prefs.RefundReturn, &u.Prefs.SupportTicket, &u.Prefs.Customs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	u.Role = models.Role(role)
	u.Prefs.ShipmentUpdates = models.ShipmentUpdateMode(mode)
	return &u, nil
}

func (s *Storage) UpsertUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	p := u.Prefs
	_, err := s.db.Exec(ctx, `
INSERT INTO users (
  id, email, name, role,
  shipment_updates, pref_marketing, pref_account, pref_admin,
  pref_tracking_delivery, pref_refund_return, pref_support_ticket, pref_customs,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  name = EXCLUDED.name,
  role = EXCLUDED.role,
  shipment_updates = EXCLUDED.shipment_updates,
  pref_marketing = EXCLUDED.pref_marketing,
  pref_account = EXCLUDED.pref_account,
  pref_admin = EXCLUDED.pref_admin,
  pref_tracking_delivery = EXCLUDED.pref_tracking_delivery,
  pref_refund_return = EXCLUDED.pref_refund_return,
  pref_support_ticket = EXCLUDED.pref_support_ticket,
  pref_customs = EXCLUDED.pref_customs,
  updated_at = EXCLUDED.updated_at
`,
		u.ID, u.Email, u.Name, string(u.Role),
		string(p.ShipmentUpdates), p.Marketing, p.Account, p.Admin,
		p.TrackingDelivery, p.RefundReturn, p.SupportTicket, p.Customs,
		now,
	)
	return errors.Wrap(err, "upsert user")
}

func (s *Storage) UpdatePreferences(ctx context.Context, userID string, p models.NotificationPreferences) error {
	tag, err := s.db.Exec(ctx, `
UPDATE users SET
  shipment_updates = $2, pref_marketing = $3, pref_account = $4, pref_admin = $5,
  pref_tracking_delivery = $6, pref_refund_return = $7, pref_support_ticket = $8, pref_customs = $9,
  updated_at = now()
WHERE id = $1
`, userID, string(p.ShipmentUpdates), p.Marketing, p.Account, p.Admin,
		p.TrackingDelivery, p.RefundReturn, p.SupportTicket, p.Customs)
	if err != nil {
		return errors.Wrap(err, "update preferences")
	}
	if tag.RowsAffected() == 0 {
		return models.NewNotFoundError("user", userID)
	}
	return nil
}
