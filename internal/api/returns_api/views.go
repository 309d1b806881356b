package returns_api

import (
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/returns"
)

type createReturnRequest struct {
	SellerID    string `json:"sellerId" validate:"omitempty,max=64"`
	OrderNumber string `json:"orderNumber" validate:"required,max=64,singleline"`
	Reason      string `json:"reason" validate:"max=2000"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

type assignRequest struct {
	AssigneeID string `json:"assigneeId" validate:"required,max=64"`
}

type photoRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type preferencesRequest struct {
	ShipmentUpdates  string `json:"shipmentUpdates" validate:"required,oneof=immediate digest off"`
	Marketing        bool   `json:"marketing"`
	Account          bool   `json:"account"`
	Admin            bool   `json:"admin"`
	TrackingDelivery bool   `json:"trackingDelivery"`
	RefundReturn     bool   `json:"refundReturn"`
	SupportTicket    bool   `json:"supportTicket"`
	Customs          bool   `json:"customs"`
}

func (p preferencesRequest) toModel() models.NotificationPreferences {
	return models.NotificationPreferences{
		ShipmentUpdates:  models.ShipmentUpdateMode(p.ShipmentUpdates),
		Marketing:        p.Marketing,
		Account:          p.Account,
		Admin:            p.Admin,
		TrackingDelivery: p.TrackingDelivery,
		RefundReturn:     p.RefundReturn,
		SupportTicket:    p.SupportTicket,
		Customs:          p.Customs,
	}
}

// defaultPreferences applies to users created without explicit preferences: everything
// transactional on, marketing off, shipment updates sent immediately.
var defaultPreferences = models.NotificationPreferences{
	ShipmentUpdates:  models.ShipmentUpdatesImmediate,
	Account:          true,
	Admin:            true,
	TrackingDelivery: true,
	RefundReturn:     true,
	SupportTicket:    true,
	Customs:          true,
}

type userRequest struct {
	Email       string              `json:"email" validate:"omitempty,email"`
	Name        string              `json:"name" validate:"max=200"`
	Role        string              `json:"role" validate:"omitempty,oneof=admin seller"`
	Preferences *preferencesRequest `json:"preferences"`
}

type shipmentRequest struct {
	OwnerUserID    string `json:"ownerUserId" validate:"required"`
	TrackingID     uint64 `json:"trackingId"`
	TrackingNumber string `json:"trackingNumber" validate:"required,max=64,singleline"`
	RecipientName  string `json:"recipientName"`
	Destination    string `json:"destination"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type recipientView struct {
	UserID     string `json:"userId,omitempty"`
	Email      string `json:"email,omitempty"`
	Status     string `json:"status"`
	SkipReason string `json:"skipReason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

type notificationView struct {
	Category   string          `json:"category"`
	Outcome    string          `json:"outcome"`
	Recipients []recipientView `json:"recipients"`
}

type returnResponse struct {
	Return        *models.ReturnRecord `json:"return"`
	Notifications []notificationView   `json:"notifications"`
}

type photoResponse struct {
	Photo         *models.ReturnPhoto `json:"photo"`
	Notifications []notificationView  `json:"notifications"`
}

type shipmentResponse struct {
	Shipment      *models.Shipment   `json:"shipment"`
	Approved      bool               `json:"approved"`
	Notifications []notificationView `json:"notifications"`
}

type toggleView struct {
	Category   models.Category `json:"category"`
	Enabled    bool            `json:"enabled"`
	Overridden bool            `json:"overridden"`
}

type auditView struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Recipient  string    `json:"recipient"`
	UserID     string    `json:"userId,omitempty"`
	Subject    string    `json:"subject"`
	Status     string    `json:"status"`
	SkipReason string    `json:"skipReason,omitempty"`
	Error      string    `json:"error,omitempty"`
	DedupeKey  string    `json:"dedupeKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toResultResponse(res returns.Result) returnResponse {
	return returnResponse{Return: res.Return, Notifications: toNotificationViews(res.Notifications)}
}

func toNotificationViews(results []models.DispatchResult) []notificationView {
	out := make([]notificationView, 0, len(results))
	for _, res := range results {
		v := notificationView{
			Category:   string(res.Category),
			Outcome:    string(res.Aggregate),
			Recipients: make([]recipientView, 0, len(res.Outcomes)),
		}
		for _, o := range res.Outcomes {
			rv := recipientView{
				UserID:     o.Recipient.UserID,
				Email:      o.Recipient.Email,
				Status:     string(o.Status),
				SkipReason: string(o.SkipReason),
				DurationMS: o.Duration.Milliseconds(),
			}
			if o.Err != nil {
				rv.Error = o.Err.Error()
			}
			v.Recipients = append(v.Recipients, rv)
		}
		out = append(out, v)
	}
	return out
}

func toAuditViews(entries []models.AuditEntry) []auditView {
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:         e.ID,
			Category:   string(e.Category),
			Recipient:  e.Recipient,
			UserID:     e.UserID,
			Subject:    e.Subject,
			Status:     string(e.Status),
			SkipReason: string(e.SkipReason),
			Error:      e.Error,
			DedupeKey:  e.DedupeKey,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
