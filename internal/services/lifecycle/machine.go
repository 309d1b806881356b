// Package lifecycle owns the return state machine. Functions here mutate a
// ReturnRecord in place and return the notifications the mutation produced;
// they never perform I/O.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
)

// Transition moves rec to newStatus. A transition to the current status is a
// no-op and emits nothing. Milestone timestamps are written once.
func Transition(rec *models.ReturnRecord, newStatus models.ReturnStatus, actor models.Actor, now time.Time) ([]models.Event, error) {
	if !newStatus.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", newStatus))
	}
	if err := authorize(actor, rec, ActionTransitionStatus); err != nil {
		return nil, err
	}
	prev := rec.Status
	if newStatus.Rank() < prev.Rank() {
		return nil, models.NewValidationError("status", fmt.Sprintf("cannot move back from %s to %s", prev, newStatus))
	}

	if newStatus == prev {
		return nil, nil
	}

	stampMilestone(rec, newStatus, now)
	rec.Status = newStatus
	rec.UpdatedAt = now
	return []models.Event{statusChangedEvent(rec, prev, now)}, nil
}

func stampMilestone(rec *models.ReturnRecord, status models.ReturnStatus, now time.Time) {
	var slot **time.Time
	switch status {
	case models.ReturnStatusInspected:
		slot = &rec.InspectionDate
	case models.ReturnStatusRefundInitiated:
		slot = &rec.RefundInitiatedDate
	case models.ReturnStatusCompleted:
		slot = &rec.CompletedDate
	default:
		return
	}
	if *slot != nil {
		return
	}
	t := now
	*slot = &t
}

func UpdateSellerNotes(rec *models.ReturnRecord, actor models.Actor, notes string, now time.Time) error {
	if err := authorize(actor, rec, ActionEditSellerNotes); err != nil {
		return err
	}
	rec.SellerNotes = notes
	rec.UpdatedAt = now
	return nil
}

func UpdateAdminNotes(rec *models.ReturnRecord, actor models.Actor, notes string, now time.Time) error {
	if err := authorize(actor, rec, ActionEditAdminNotes); err != nil {
		return err
	}
	rec.AdminNotes = notes
	rec.UpdatedAt = now
	return nil
}

func ToggleControlled(rec *models.ReturnRecord, actor models.Actor, now time.Time) error {
	if err := authorize(actor, rec, ActionToggleControlled); err != nil {
		return err
	}
	rec.IsControlled = !rec.IsControlled
	rec.UpdatedAt = now
	return nil
}

// Assign hands rec to assigneeID. The caller is responsible for checking that
// the assignee exists before calling.
func Assign(rec *models.ReturnRecord, actor models.Actor, assigneeID string, now time.Time) ([]models.Event, error) {
	if assigneeID == "" {
		return nil, models.NewValidationError("assigneeId", "required")
	}
	if err := authorize(actor, rec, ActionAssign); err != nil {
		return nil, err
	}
	rec.Assignment = &models.Assignment{
		AssigneeID: assigneeID,
		AssignedBy: actor.UserID,
		AssignedAt: now,
	}
	rec.UpdatedAt = now
	return []models.Event{assignedEvent(rec, actor, now)}, nil
}

func Unassign(rec *models.ReturnRecord, actor models.Actor, now time.Time) error {
	if err := authorize(actor, rec, ActionUnassign); err != nil {
		return err
	}
	rec.Assignment = nil
	rec.UpdatedAt = now
	return nil
}

func Created(rec *models.ReturnRecord, now time.Time) []models.Event {
	return []models.Event{
		{
			Category:   models.CategoryAdmin,
			Target:     models.Target{Admins: true},
			Subject:    fmt.Sprintf("New return request for order %s", rec.OrderNumber),
			Body:       fmt.Sprintf("Return %s was opened by seller %s.\nReason: %s", rec.ID, rec.SellerID, rec.Reason),
			DedupeKey:  fmt.Sprintf("return:%s:created:admin", rec.ID),
			Meta:       map[string]string{"return_id": rec.ID},
			OccurredAt: now,
		},
		{
			Category:   models.CategoryRefundReturn,
			Target:     models.Target{UserID: rec.SellerID},
			Subject:    fmt.Sprintf("We received your return request for order %s", rec.OrderNumber),
			Body:       fmt.Sprintf("Your return %s is pending. We will keep you posted on every step.", rec.ID),
			DedupeKey:  fmt.Sprintf("return:%s:created", rec.ID),
			Meta:       map[string]string{"return_id": rec.ID},
			OccurredAt: now,
		},
	}
}

func statusChangedEvent(rec *models.ReturnRecord, prev models.ReturnStatus, now time.Time) models.Event {
	return models.Event{
		Category:  models.CategoryRefundReturn,
		Target:    models.Target{UserID: rec.SellerID},
		Subject:   fmt.Sprintf("Return for order %s is now %s", rec.OrderNumber, rec.Status),
		Body:      fmt.Sprintf("Return %s moved from %s to %s.", rec.ID, prev, rec.Status),
		DedupeKey: fmt.Sprintf("return:%s:status:%s", rec.ID, rec.Status),
		Meta: map[string]string{
			"return_id": rec.ID,
			"from":      string(prev),
			"to":        string(rec.Status),
		},
		OccurredAt: now,
	}
}

func assignedEvent(rec *models.ReturnRecord, actor models.Actor, now time.Time) models.Event {
	return models.Event{
		Category:   models.CategoryAdmin,
		Target:     models.Target{UserID: rec.Assignment.AssigneeID},
		Subject:    fmt.Sprintf("Return for order %s was assigned to you", rec.OrderNumber),
		Body:       fmt.Sprintf("%s assigned return %s to you.", actor.UserID, rec.ID),
		DedupeKey:  fmt.Sprintf("return:%s:assigned:%s:%d", rec.ID, rec.Assignment.AssigneeID, now.Unix()),
		Meta:       map[string]string{"return_id": rec.ID, "assigned_by": actor.UserID},
		OccurredAt: now,
	}
}
