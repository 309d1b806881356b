package pgreturns

import (
	"context"
	"strconv"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `id, owner_user_id, tracking_id, tracking_number, recipient_name, destination, approved_at`

func (s *Storage) UpsertShipment(ctx context.Context, sh *models.Shipment) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO shipments (`+shipmentColumns+`, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  owner_user_id = EXCLUDED.owner_user_id,
  tracking_id = EXCLUDED.tracking_id,
  tracking_number = EXCLUDED.tracking_number,
  recipient_name = EXCLUDED.recipient_name,
  destination = EXCLUDED.destination
`, sh.ID, sh.OwnerUserID, int64(sh.TrackingID), sh.TrackingNumber, sh.RecipientName, sh.Destination, sh.ApprovedAt, time.Now().UTC())
	return errors.Wrap(err, "upsert shipment")
}

func (s *Storage) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("shipment", id)
	}
	return sh, errors.Wrap(err, "select shipment")
}

func (s *Storage) GetShipmentByTrackingID(ctx context.Context, trackingID uint64) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE tracking_id = $1`, int64(trackingID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("shipment", "tracking:"+itoa(trackingID))
	}
	return sh, errors.Wrap(err, "select shipment by tracking")
}

// ApproveShipment stamps approved_at once. approved is false when it was already set.
func (s *Storage) ApproveShipment(ctx context.Context, id string, at time.Time) (*models.Shipment, bool, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `
UPDATE shipments SET approved_at = $2
WHERE id = $1 AND approved_at IS NULL
RETURNING `+shipmentColumns, id, at.UTC()))
	if err == nil {
		return sh, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Wrap(err, "approve shipment")
	}
	sh, err = s.GetShipment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sh, false, nil
}

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	var trackingID int64
	if err := row.Scan(&sh.ID, &sh.OwnerUserID, &trackingID, &sh.TrackingNumber, &sh.RecipientName, &sh.Destination, &sh.ApprovedAt); err != nil {
		return nil, err
	}
	sh.TrackingID = uint64(trackingID)
	return &sh, nil
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
