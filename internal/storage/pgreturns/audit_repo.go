package pgreturns

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
)

// Record appends one entry to notification_log. The log is never updated in place.
func (s *Storage) Record(ctx context.Context, e models.AuditEntry) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO notification_log (
  id, category, recipient, user_id, subject, status, skip_reason, error, dedupe_key, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, e.ID, string(e.Category), e.Recipient, e.UserID, e.Subject, string(e.Status),
		string(e.SkipReason), e.Error, e.DedupeKey, e.CreatedAt.UTC())
	return errors.Wrap(err, "insert notification log")
}

func (s *Storage) ListAudit(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}

	q := `
SELECT id, category, recipient, user_id, subject, status, skip_reason, error, dedupe_key, created_at
FROM notification_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select notification log")
	}
	defer rows.Close()

	out := make([]models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		var category, status, skip string
		if err := rows.Scan(&e.ID, &category, &e.Recipient, &e.UserID, &e.Subject, &status, &skip, &e.Error, &e.DedupeKey, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification log")
		}
		e.Category = models.Category(category)
		e.Status = models.RecipientStatus(status)
		e.SkipReason = models.SkipReason(skip)
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
