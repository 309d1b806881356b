package pgreturns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const returnColumns = `
  id, seller_id, order_number, reason, status, is_controlled,
  assignee_id, assigned_by, assigned_at,
  inspection_date, refund_initiated_date, completed_date,
  admin_notes, seller_notes, version, created_at, updated_at`

func (s *Storage) CreateReturn(ctx context.Context, rec *models.ReturnRecord) error {
	if rec.Version == 0 {
		rec.Version = 1
	}
	assigneeID, assignedBy, assignedAt := assignmentColumns(rec.Assignment)
	_, err := s.db.Exec(ctx, `
INSERT INTO returns (`+returnColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		rec.ID, rec.SellerID, rec.OrderNumber, rec.Reason, string(rec.Status), rec.IsControlled,
		assigneeID, assignedBy, assignedAt,
		rec.InspectionDate, rec.RefundInitiatedDate, rec.CompletedDate,
		rec.AdminNotes, rec.SellerNotes, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	return errors.Wrap(err, "insert return")
}

func (s *Storage) GetReturn(ctx context.Context, id string) (*models.ReturnRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`, id)
	rec, err := scanReturn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("return", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select return")
	}
	return rec, nil
}

// UpdateReturn writes rec if nobody else changed it since it was read.
// On success rec.Version is bumped to the stored value.
func (s *Storage) UpdateReturn(ctx context.Context, rec *models.ReturnRecord) error {
	assigneeID, assignedBy, assignedAt := assignmentColumns(rec.Assignment)
	tag, err := s.db.Exec(ctx, `
UPDATE returns SET
  status = $3,
  is_controlled = $4,
  assignee_id = $5, assigned_by = $6, assigned_at = $7,
  inspection_date = $8, refund_initiated_date = $9, completed_date = $10,
  admin_notes = $11, seller_notes = $12,
  version = version + 1,
  updated_at = $13
WHERE id = $1 AND version = $2
`,
		rec.ID, rec.Version,
		string(rec.Status), rec.IsControlled,
		assigneeID, assignedBy, assignedAt,
		rec.InspectionDate, rec.RefundInitiatedDate, rec.CompletedDate,
		rec.AdminNotes, rec.SellerNotes, rec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "update return")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM returns WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "check return")
		}
		if !exists {
			return models.NewNotFoundError("return", rec.ID)
		}
		return errors.Wrapf(models.ErrVersionConflict, "return %s at version %d", rec.ID, rec.Version)
	}
	rec.Version++
	return nil
}

func (s *Storage) ListReturns(ctx context.Context, f models.ReturnFilter) ([]*models.ReturnRecord, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if f.OrderNumber != "" {
		add("order_number = $%d", f.OrderNumber)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		add("created_at < $%d", f.CreatedTo.UTC())
	}

	q := `SELECT ` + returnColumns + ` FROM returns`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select returns")
	}
	defer rows.Close()

	out := make([]*models.ReturnRecord, 0)
	for rows.Next() {
		rec, err := scanReturn(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan return")
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// AddReturnPhoto is idempotent on (return, url); a repeat keeps the first uploader.
func (s *Storage) AddReturnPhoto(ctx context.Context, p *models.ReturnPhoto) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM returns WHERE id = $1 FOR SHARE)`, p.ReturnID).Scan(&exists); err != nil {
			return errors.Wrap(err, "lock return")
		}
		if !exists {
			return models.NewNotFoundError("return", p.ReturnID)
		}
		err := tx.QueryRow(ctx, `
INSERT INTO return_photos (return_id, url, uploaded_by, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (return_id, url) DO UPDATE SET uploaded_by = return_photos.uploaded_by
RETURNING id, uploaded_by, created_at
`, p.ReturnID, p.URL, p.UploadedBy, p.CreatedAt).Scan(&p.ID, &p.UploadedBy, &p.CreatedAt)
		return errors.Wrap(err, "insert return photo")
	})
}

func (s *Storage) ListReturnPhotos(ctx context.Context, returnID string) ([]*models.ReturnPhoto, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, return_id, url, uploaded_by, created_at
FROM return_photos
WHERE return_id = $1
ORDER BY created_at, id
`, returnID)
	if err != nil {
		return nil, errors.Wrap(err, "select return photos")
	}
	defer rows.Close()

	var out []*models.ReturnPhoto
	for rows.Next() {
		var p models.ReturnPhoto
		if err := rows.Scan(&p.ID, &p.ReturnID, &p.URL, &p.UploadedBy, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan return photo")
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func scanReturn(row pgx.Row) (*models.ReturnRecord, error) {
	var rec models.ReturnRecord
	var status string
	var assigneeID, assignedBy *string
	var assignedAt *time.Time
	if err := row.Scan(
		&rec.ID, &rec.SellerID, &rec.OrderNumber, &rec.Reason, &status, &rec.IsControlled,
		&assigneeID, &assignedBy, &assignedAt,
		&rec.InspectionDate, &rec.RefundInitiatedDate, &rec.CompletedDate,
		&rec.AdminNotes, &rec.SellerNotes, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = models.ReturnStatus(status)
	if assigneeID != nil {
		rec.Assignment = &models.Assignment{AssigneeID: *assigneeID}
		if assignedBy != nil {
			rec.Assignment.AssignedBy = *assignedBy
		}
		if assignedAt != nil {
			rec.Assignment.AssignedAt = *assignedAt
		}
	}
	return &rec, nil
}

func assignmentColumns(a *models.Assignment) (*string, *string, *time.Time) {
	if a == nil {
		return nil, nil, nil
	}
	at := a.AssignedAt
	return &a.AssigneeID, &a.AssignedBy, &at
}
