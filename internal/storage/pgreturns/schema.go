package pgreturns

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  shipment_updates TEXT NOT NULL DEFAULT 'immediate',
  pref_marketing BOOLEAN NOT NULL DEFAULT FALSE,
  pref_account BOOLEAN NOT NULL DEFAULT TRUE,
  pref_admin BOOLEAN NOT NULL DEFAULT TRUE,
  pref_tracking_delivery BOOLEAN NOT NULL DEFAULT TRUE,
  pref_refund_return BOOLEAN NOT NULL DEFAULT TRUE,
  pref_support_ticket BOOLEAN NOT NULL DEFAULT TRUE,
  pref_customs BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS returns (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL REFERENCES users(id),
  order_number TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  is_controlled BOOLEAN NOT NULL DEFAULT FALSE,
  assignee_id TEXT NULL REFERENCES users(id),
  assigned_by TEXT NULL,
  assigned_at TIMESTAMPTZ NULL,
  inspection_date TIMESTAMPTZ NULL,
  refund_initiated_date TIMESTAMPTZ NULL,
  completed_date TIMESTAMPTZ NULL,
  admin_notes TEXT NOT NULL DEFAULT '',
  seller_notes TEXT NOT NULL DEFAULT '',
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_returns_status ON returns(status)`,
		`CREATE INDEX IF NOT EXISTS idx_returns_order_number ON returns(order_number)`,
		`CREATE INDEX IF NOT EXISTS idx_returns_created_at ON returns(created_at)`,
		`
CREATE TABLE IF NOT EXISTS return_photos (
  id BIGSERIAL PRIMARY KEY,
  return_id TEXT NOT NULL REFERENCES returns(id),
  url TEXT NOT NULL,
  uploaded_by TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (return_id, url)
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL REFERENCES users(id),
  tracking_id BIGINT NOT NULL UNIQUE,
  tracking_number TEXT NOT NULL,
  recipient_name TEXT NOT NULL DEFAULT '',
  destination TEXT NOT NULL DEFAULT '',
  approved_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS notification_log (
  id TEXT PRIMARY KEY,
  category TEXT NOT NULL,
  recipient TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  subject TEXT NOT NULL,
  status TEXT NOT NULL,
  skip_reason TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  dedupe_key TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_log_created_at ON notification_log(created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
