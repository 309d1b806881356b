package models

import (
	"strings"
	"time"
)

// Tracking statuses as published by the tracking worker.
const (
	TrackingStatusUnknown   = "UNKNOWN"
	TrackingStatusInTransit = "IN_TRANSIT"
	TrackingStatusDelivered = "DELIVERED"
)

// Issue types raised when a tracking status signals a delivery problem.
const (
	IssueDeliveryFailed = "delivery_failed"
	IssueReturned       = "returned_to_sender"
	IssueLost           = "lost"
	IssueDamaged        = "damaged"
	IssueCustomsHold    = "customs_hold"
	IssueException      = "carrier_exception"
)

var issueByStatus = map[string]string{
	"DELIVERY_FAILED": IssueDeliveryFailed,
	"RETURNED":        IssueReturned,
	"LOST":            IssueLost,
	"DAMAGED":         IssueDamaged,
	"CUSTOMS_HOLD":    IssueCustomsHold,
	"EXCEPTION":       IssueException,
}

// IssueTypeFor maps a normalized tracking status to an issue type, "" when the status is healthy.
func IssueTypeFor(status string) string {
	return issueByStatus[strings.ToUpper(strings.TrimSpace(status))]
}

type Shipment struct {
	ID             string     `json:"id"`
	OwnerUserID    string     `json:"ownerUserId"`
	TrackingID     uint64     `json:"trackingId"`
	TrackingNumber string     `json:"trackingNumber"`
	RecipientName  string     `json:"recipientName,omitempty"`
	Destination    string     `json:"destination,omitempty"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
}

// TrackingUpdate is one digest input row. Owner and recipient fields are
// captured when the update is enqueued so later user edits don't rewrite history.
type TrackingUpdate struct {
	ShipmentID        string    `json:"shipmentId"`
	TrackingNumber    string    `json:"trackingNumber"`
	Status            string    `json:"status"`
	StatusDescription string    `json:"statusDescription"`
	IssueType         string    `json:"issueType,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`

	OwnerUserID   string `json:"ownerUserId"`
	OwnerEmail    string `json:"ownerEmail"`
	OwnerName     string `json:"ownerName,omitempty"`
	RecipientName string `json:"recipientName,omitempty"`
	Destination   string `json:"destination,omitempty"`
}

type DigestRow struct {
	ShipmentID        string
	TrackingNumber    string
	RecipientName     string
	Destination       string
	Status            string
	StatusDescription string
	IssueType         string
	Timestamp         time.Time

	// Only set on admin report rows.
	OwnerUserID string
	OwnerEmail  string
}

type Report struct {
	WindowID string
	// UserID is empty for the admin report.
	UserID string
	Email  string
	Name   string
	Admin  bool
	Rows   []DigestRow
}

func (r Report) Empty() bool { return len(r.Rows) == 0 }

func (r Report) IssueCount() int {
	n := 0
	for _, row := range r.Rows {
		if row.IssueType != "" {
			n++
		}
	}
	return n
}
