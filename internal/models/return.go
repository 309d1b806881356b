package models

import "time"

type ReturnStatus string

const (
	ReturnStatusPending         ReturnStatus = "PENDING"
	ReturnStatusReceived        ReturnStatus = "RECEIVED"
	ReturnStatusInspected       ReturnStatus = "INSPECTED"
	ReturnStatusRefundInitiated ReturnStatus = "REFUND_INITIATED"
	ReturnStatusCompleted       ReturnStatus = "COMPLETED"
)

// Milestone order; a return only ever moves right in this list.
var returnStatusOrder = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusReceived,
	ReturnStatusInspected,
	ReturnStatusRefundInitiated,
	ReturnStatusCompleted,
}

// Rank returns the position of s in the milestone list, or -1 for unknown values.
func (s ReturnStatus) Rank() int {
	for i, st := range returnStatusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s ReturnStatus) Valid() bool { return s.Rank() >= 0 }

func (s ReturnStatus) Terminal() bool { return s == ReturnStatusCompleted }

func ReturnStatuses() []ReturnStatus {
	out := make([]ReturnStatus, len(returnStatusOrder))
	copy(out, returnStatusOrder)
	return out
}

type Assignment struct {
	AssigneeID string    `json:"assigneeId"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

type ReturnRecord struct {
	ID          string       `json:"id"`
	SellerID    string       `json:"sellerId"`
	OrderNumber string       `json:"orderNumber"`
	Reason      string       `json:"reason,omitempty"`
	Status      ReturnStatus `json:"status"`

	IsControlled bool        `json:"isControlled"`
	Assignment   *Assignment `json:"assignment,omitempty"`

	InspectionDate      *time.Time `json:"inspectionDate,omitempty"`
	RefundInitiatedDate *time.Time `json:"refundInitiatedDate,omitempty"`
	CompletedDate       *time.Time `json:"completedDate,omitempty"`

	AdminNotes  string `json:"adminNotes,omitempty"`
	SellerNotes string `json:"sellerNotes,omitempty"`

	// Version is bumped on every persisted mutation (optimistic locking in the store).
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *ReturnRecord) Clone() *ReturnRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Assignment != nil {
		a := *r.Assignment
		c.Assignment = &a
	}
	c.InspectionDate = cloneTime(r.InspectionDate)
	c.RefundInitiatedDate = cloneTime(r.RefundInitiatedDate)
	c.CompletedDate = cloneTime(r.CompletedDate)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type ReturnCreateInput struct {
	SellerID    string
	OrderNumber string
	Reason      string
}

// ReturnFilter narrows ListReturns. Zero fields are ignored.
type ReturnFilter struct {
	Status      ReturnStatus
	SellerID    string
	OrderNumber string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

type ReturnPhoto struct {
	ID         int64     `json:"id"`
	ReturnID   string    `json:"returnId"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}
