package models

import (
	"time"
)

type Category string

const (
	CategoryMarketing         Category = "marketing"
	CategoryShipmentImmediate Category = "shipment-immediate"
	CategoryShipmentDigest    Category = "shipment-digest"
	CategoryAccount           Category = "account"
	CategoryAdmin             Category = "admin"
	CategoryTrackingDelivery  Category = "tracking-delivery"
	CategoryRefundReturn      Category = "refund-return"
	CategorySupportTicket     Category = "support-ticket"
	CategoryCustoms           Category = "customs"
)

var categories = []Category{
	CategoryMarketing,
	CategoryShipmentImmediate,
	CategoryShipmentDigest,
	CategoryAccount,
	CategoryAdmin,
	CategoryTrackingDelivery,
	CategoryRefundReturn,
	CategorySupportTicket,
	CategoryCustoms,
}

func (c Category) Valid() bool {
	for _, k := range categories {
		if k == c {
			return true
		}
	}
	return false
}

func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Target says who an event is meant for before recipients are resolved.
// User and Admins are gated independently.
type Target struct {
	UserID string `json:"userId,omitempty"`
	Admins bool   `json:"admins,omitempty"`
}

func (t Target) Empty() bool { return t.UserID == "" && !t.Admins }

type Event struct {
	Category Category
	// Critical events fail open when the preference lookup errors.
	Critical bool
	Target   Target

	Subject string
	Body    string

	// DedupeKey groups retried calls for the same logical event (e.g. "shipment:42:approved").
	DedupeKey string

	Meta       map[string]string
	OccurredAt time.Time
}

type Recipient struct {
	UserID string
	Email  string
	Name   string
	// AlwaysNotify bypasses the global toggle and per-user preference checks.
	AlwaysNotify bool
	// LookupErr is set when the user could not be loaded; the send is then
	// recorded as failed with this cause.
	LookupErr error
}

type RecipientStatus string

const (
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientSkipped RecipientStatus = "skipped"
)

type SkipReason string

const (
	SkipPreferenceDisabled   SkipReason = "preference-disabled"
	SkipGlobalToggleDisabled SkipReason = "global-toggle-disabled"
	SkipDuplicate            SkipReason = "duplicate"
)

type RecipientOutcome struct {
	Recipient  Recipient
	Status     RecipientStatus
	SkipReason SkipReason
	Err        error
	Duration   time.Duration
}

func (o RecipientOutcome) Attempted() bool { return o.Status != RecipientSkipped }

type AggregateOutcome string

const (
	OutcomeAllSuccess     AggregateOutcome = "all-success"
	OutcomePartialFailure AggregateOutcome = "partial-failure"
	OutcomeTotalFailure   AggregateOutcome = "total-failure"
	OutcomeSkipped        AggregateOutcome = "skipped"
)

type DispatchResult struct {
	Category  Category
	Aggregate AggregateOutcome
	Outcomes  []RecipientOutcome
}

// Aggregate folds per-recipient outcomes into the tri-state result.
// Zero attempted sends is reported as skipped, never as failure.
func Aggregate(outcomes []RecipientOutcome) AggregateOutcome {
	var sent, failed int
	for _, o := range outcomes {
		switch o.Status {
		case RecipientSent:
			sent++
		case RecipientFailed:
			failed++
		}
	}
	switch {
	case sent == 0 && failed == 0:
		return OutcomeSkipped
	case failed == 0:
		return OutcomeAllSuccess
	case sent == 0:
		return OutcomeTotalFailure
	default:
		return OutcomePartialFailure
	}
}

// Delivered reports whether the send counts as done for retry purposes:
// partial failure is good enough, and so is a send with nothing to attempt.
func (r DispatchResult) Delivered() bool {
	return r.Aggregate != OutcomeTotalFailure
}

func (r DispatchResult) Count(status RecipientStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

type AuditEntry struct {
	ID         string
	Category   Category
	Recipient  string
	UserID     string
	Subject    string
	Status     RecipientStatus
	SkipReason SkipReason
	Error      string
	DedupeKey  string
	CreatedAt  time.Time
}

type AuditFilter struct {
	Category Category
	Status   RecipientStatus
	UserID   string
	Limit    int
}
