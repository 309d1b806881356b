// Package notifier turns domain events into dispatches: it resolves targets to
// recipients and hands each event to the fan-out coordinator.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/lifecycle"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type ShipmentStore interface {
	GetShipmentByTrackingID(ctx context.Context, trackingID uint64) (*models.Shipment, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.Event, recipients []models.Recipient) (models.DispatchResult, error)
}

type DigestQueue interface {
	Enqueue(ctx context.Context, u models.TrackingUpdate) error
}

type Notifier struct {
	users      UserStore
	dispatcher Dispatcher
	admins     []models.Recipient
	log        *zap.Logger

	shipments ShipmentStore
	digest    DigestQueue

	now func() time.Time
}

// New builds a notifier. adminEmails is the fixed operations list; those
// recipients are never subject to toggles or preferences.
func New(users UserStore, dispatcher Dispatcher, adminEmails []string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	admins := make([]models.Recipient, 0, len(adminEmails))
	for _, e := range adminEmails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		admins = append(admins, models.Recipient{Email: e, Name: "ReturnBox operations", AlwaysNotify: true})
	}
	return &Notifier{
		users:      users,
		dispatcher: dispatcher,
		admins:     admins,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (n *Notifier) WithShipments(s ShipmentStore) *Notifier {
	n.shipments = s
	return n
}

func (n *Notifier) WithDigest(q DigestQueue) *Notifier {
	n.digest = q
	return n
}

func (n *Notifier) Admins() []models.Recipient {
	out := make([]models.Recipient, len(n.admins))
	copy(out, n.admins)
	return out
}

// Recipients resolves a target. Unknown users are dropped; users whose lookup
// failed are kept without an address so the attempt is recorded as a failure.
func (n *Notifier) Recipients(ctx context.Context, t models.Target) []models.Recipient {
	var out []models.Recipient
	if t.UserID != "" {
		u, err := n.users.GetUser(ctx, t.UserID)
		switch {
		case err == nil && u != nil:
			out = append(out, models.Recipient{UserID: u.ID, Email: u.Email, Name: u.Name})
		case models.IsNotFound(err) || (err == nil && u == nil):
			n.log.Debug("notification target does not exist", zap.String("user_id", t.UserID))
		default:
			n.log.Warn("resolve notification target", zap.String("user_id", t.UserID), zap.Error(err))
			out = append(out, models.Recipient{UserID: t.UserID, LookupErr: err})
		}
	}
	if t.Admins {
		out = append(out, n.admins...)
	}
	return out
}

// Notify dispatches every event and returns one result per event, in order.
// It never fails: delivery problems are data on the results.
func (n *Notifier) Notify(ctx context.Context, events []models.Event) []models.DispatchResult {
	results := make([]models.DispatchResult, 0, len(events))
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = n.now()
		}
		res, err := n.dispatcher.Dispatch(ctx, ev, n.Recipients(ctx, ev.Target))
		if err != nil {
			n.log.Error("dispatch rejected event",
				zap.String("category", string(ev.Category)),
				zap.String("subject", ev.Subject),
				zap.Error(err))
			res = models.DispatchResult{Category: ev.Category, Aggregate: models.OutcomeSkipped}
		}
		results = append(results, res)
	}
	return results
}

func (n *Notifier) ReturnCreated(ctx context.Context, rec *models.ReturnRecord) []models.DispatchResult {
	return n.Notify(ctx, lifecycle.Created(rec, n.now()))
}

func (n *Notifier) PhotoUploaded(ctx context.Context, rec *models.ReturnRecord, photoURL string) []models.DispatchResult {
	ev := models.Event{
		Category:   models.CategoryAdmin,
		Target:     models.Target{Admins: true},
		Subject:    fmt.Sprintf("New photo for return %s (order %s)", rec.ID, rec.OrderNumber),
		Body:       fmt.Sprintf("Seller %s uploaded a photo for return %s.\n%s\n", rec.SellerID, rec.ID, photoURL),
		DedupeKey:  fmt.Sprintf("return:%s:photo:%s", rec.ID, photoURL),
		Meta:       map[string]string{"return_id": rec.ID, "photo_url": photoURL},
		OccurredAt: n.now(),
	}
	return n.Notify(ctx, []models.Event{ev})
}

func (n *Notifier) ShipmentApproved(ctx context.Context, sh models.Shipment) []models.DispatchResult {
	ev := models.Event{
		Category: models.CategoryShipmentImmediate,
		Target:   models.Target{UserID: sh.OwnerUserID, Admins: true},
		Subject:  fmt.Sprintf("Shipment %s approved", sh.TrackingNumber),
		Body: fmt.Sprintf("Shipment %s to %s (%s) was approved and is ready to ship.\n",
			sh.TrackingNumber, sh.RecipientName, sh.Destination),
		DedupeKey:  fmt.Sprintf("shipment:%s:approved", sh.ID),
		Meta:       map[string]string{"shipment_id": sh.ID},
		OccurredAt: n.now(),
	}
	return n.Notify(ctx, []models.Event{ev})
}

// TrackingUpdated buffers u for the digest, sends the immediate update to owners
// who asked for it, and raises a delivery issue when the status calls for one.
func (n *Notifier) TrackingUpdated(ctx context.Context, u models.TrackingUpdate) ([]models.DispatchResult, error) {
	if u.IssueType == "" {
		u.IssueType = models.IssueTypeFor(u.Status)
	}
	if n.digest != nil {
		if err := n.digest.Enqueue(ctx, u); err != nil {
			return nil, errors.Wrap(err, "enqueue tracking update")
		}
	}

	events := []models.Event{{
		Category:   models.CategoryShipmentImmediate,
		Target:     models.Target{UserID: u.OwnerUserID},
		Subject:    fmt.Sprintf("Shipment %s: %s", u.TrackingNumber, u.Status),
		Body:       trackingBody(u),
		DedupeKey:  fmt.Sprintf("shipment:%s:status:%s:%d", u.ShipmentID, u.Status, u.CreatedAt.Unix()),
		Meta:       map[string]string{"shipment_id": u.ShipmentID},
		OccurredAt: u.CreatedAt,
	}}
	if u.IssueType != "" {
		events = append(events, deliveryIssueEvent(u))
	}
	return n.Notify(ctx, events), nil
}

func (n *Notifier) DeliveryIssue(ctx context.Context, u models.TrackingUpdate) []models.DispatchResult {
	if u.IssueType == "" {
		u.IssueType = models.IssueTypeFor(u.Status)
	}
	return n.Notify(ctx, []models.Event{deliveryIssueEvent(u)})
}

func deliveryIssueEvent(u models.TrackingUpdate) models.Event {
	return models.Event{
		Category:   models.CategoryTrackingDelivery,
		Target:     models.Target{UserID: u.OwnerUserID, Admins: true},
		Subject:    fmt.Sprintf("Delivery issue on shipment %s: %s", u.TrackingNumber, u.IssueType),
		Body:       trackingBody(u),
		DedupeKey:  fmt.Sprintf("shipment:%s:issue:%s", u.ShipmentID, u.IssueType),
		Meta:       map[string]string{"shipment_id": u.ShipmentID, "issue_type": u.IssueType},
		OccurredAt: u.CreatedAt,
	}
}

func trackingBody(u models.TrackingUpdate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tracking number: %s\nStatus: %s\n", u.TrackingNumber, u.Status)
	if u.StatusDescription != "" {
		fmt.Fprintf(&b, "Details: %s\n", u.StatusDescription)
	}
	if u.IssueType != "" {
		fmt.Fprintf(&b, "Issue: %s\n", u.IssueType)
	}
	if u.RecipientName != "" {
		fmt.Fprintf(&b, "Recipient: %s, %s\n", u.RecipientName, u.Destination)
	}
	fmt.Fprintf(&b, "Updated at: %s\n", u.CreatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

var ErrSkipMessage = errors.New("tracking message carries no status")

// FromTrackingMessage converts a tracking worker message into a self-contained
// digest row, capturing owner and recipient details now.
func (n *Notifier) FromTrackingMessage(ctx context.Context, msg messages.TrackingUpdated) (models.TrackingUpdate, error) {
	if msg.Error != nil || strings.TrimSpace(msg.Status) == "" {
		return models.TrackingUpdate{}, ErrSkipMessage
	}
	if n.shipments == nil {
		return models.TrackingUpdate{}, errors.New("shipment store not configured")
	}
	sh, err := n.shipments.GetShipmentByTrackingID(ctx, msg.TrackingID)
	if err != nil {
		return models.TrackingUpdate{}, errors.Wrapf(err, "shipment for tracking %d", msg.TrackingID)
	}
	owner, err := n.users.GetUser(ctx, sh.OwnerUserID)
	if err != nil {
		return models.TrackingUpdate{}, errors.Wrapf(err, "owner %s", sh.OwnerUserID)
	}

	u := models.TrackingUpdate{
		ShipmentID:     sh.ID,
		TrackingNumber: sh.TrackingNumber,
		Status:         msg.Status,
		CreatedAt:      msg.CheckedAt,
		OwnerUserID:    owner.ID,
		OwnerEmail:     owner.Email,
		OwnerName:      owner.Name,
		RecipientName:  sh.RecipientName,
		Destination:    sh.Destination,
	}
	if msg.StatusAt != nil {
		u.CreatedAt = *msg.StatusAt
	}
	u.StatusDescription = msg.StatusRaw
	if ev := msg.Latest(); ev != nil {
		if ev.Message != nil && *ev.Message != "" {
			u.StatusDescription = *ev.Message
		}
		if ev.Location != nil && *ev.Location != "" {
			u.StatusDescription += " (" + *ev.Location + ")"
		}
		// Carrier-specific raw statuses can flag problems the normalized status hides.
		if issue := models.IssueTypeFor(ev.StatusRaw); issue != "" {
			u.IssueType = issue
		}
	}
	if issue := models.IssueTypeFor(u.Status); issue != "" {
		u.IssueType = issue
	}
	return u, nil
}
