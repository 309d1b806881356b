// Package digest batches tracking updates into one report per owner plus an admin report.
package digest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Buffer holds enqueued updates until the next flush.
// Drain must return and clear the contents atomically.
type Buffer interface {
	Append(ctx context.Context, u models.TrackingUpdate) error
	Drain(ctx context.Context) ([]models.TrackingUpdate, error)
	Len(ctx context.Context) (int, error)
}

type Digest struct {
	WindowID string
	PerUser  map[string]models.Report
	Admin    models.Report
}

func (d Digest) Empty() bool { return len(d.PerUser) == 0 && d.Admin.Empty() }

func (d Digest) Rows() int { return len(d.Admin.Rows) }

type Aggregator struct {
	buf Buffer
	log *zap.Logger
	now func() time.Time
}

func NewAggregator(buf Buffer, log *zap.Logger) *Aggregator {
	if buf == nil {
		buf = NewMemoryBuffer()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{buf: buf, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue buffers one update. Everything the report needs must already be on u.
func (a *Aggregator) Enqueue(ctx context.Context, u models.TrackingUpdate) error {
	if strings.TrimSpace(u.ShipmentID) == "" {
		return models.NewValidationError("shipmentId", "required")
	}
	if strings.TrimSpace(u.OwnerUserID) == "" {
		return models.NewValidationError("ownerUserId", "required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = a.now()
	}
	if u.IssueType == "" {
		u.IssueType = models.IssueTypeFor(u.Status)
	}
	if err := a.buf.Append(ctx, u); err != nil {
		return errors.Wrap(err, "digest enqueue")
	}
	return nil
}

func (a *Aggregator) Pending(ctx context.Context) (int, error) {
	return a.buf.Len(ctx)
}

// Flush drains the buffer and groups it. An empty buffer yields an empty Digest.
func (a *Aggregator) Flush(ctx context.Context, windowID string) (Digest, error) {
	updates, err := a.buf.Drain(ctx)
	if err != nil {
		return Digest{}, errors.Wrap(err, "digest drain")
	}
	return build(windowID, updates), nil
}

func build(windowID string, updates []models.TrackingUpdate) Digest {
	d := Digest{
		WindowID: windowID,
		PerUser:  make(map[string]models.Report),
		Admin:    models.Report{WindowID: windowID, Admin: true},
	}
	if len(updates) == 0 {
		return d
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].CreatedAt.Before(updates[j].CreatedAt)
	})

	for _, u := range updates {
		row := models.DigestRow{
			ShipmentID:        u.ShipmentID,
			TrackingNumber:    u.TrackingNumber,
			RecipientName:     u.RecipientName,
			Destination:       u.Destination,
			Status:            u.Status,
			StatusDescription: u.StatusDescription,
			IssueType:         u.IssueType,
			Timestamp:         u.CreatedAt,
		}

		rep, ok := d.PerUser[u.OwnerUserID]
		if !ok {
			rep = models.Report{WindowID: windowID, UserID: u.OwnerUserID}
		}
		// The newest captured contact wins if it changed inside the window.
		if u.OwnerEmail != "" {
			rep.Email = u.OwnerEmail
		}
		if u.OwnerName != "" {
			rep.Name = u.OwnerName
		}
		rep.Rows = append(rep.Rows, row)
		d.PerUser[u.OwnerUserID] = rep

		row.OwnerUserID = u.OwnerUserID
		row.OwnerEmail = u.OwnerEmail
		d.Admin.Rows = append(d.Admin.Rows, row)
	}
	return d
}
