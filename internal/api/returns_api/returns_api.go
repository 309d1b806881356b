package returns_api

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/returns"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Returns interface {
	CreateReturn(ctx context.Context, actor models.Actor, in models.ReturnCreateInput) (returns.Result, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.ReturnRecord, error)
	List(ctx context.Context, actor models.Actor, f models.ReturnFilter) ([]*models.ReturnRecord, error)
	TransitionStatus(ctx context.Context, actor models.Actor, id string, status models.ReturnStatus) (returns.Result, error)
	UpdateSellerNotes(ctx context.Context, actor models.Actor, id, notes string) (returns.Result, error)
	UpdateAdminNotes(ctx context.Context, actor models.Actor, id, notes string) (returns.Result, error)
	ToggleControlled(ctx context.Context, actor models.Actor, id string) (returns.Result, error)
	Assign(ctx context.Context, actor models.Actor, id, assigneeID string) (returns.Result, error)
	Unassign(ctx context.Context, actor models.Actor, id string) (returns.Result, error)
	AddPhoto(ctx context.Context, actor models.Actor, id, url string) (*models.ReturnPhoto, []models.DispatchResult, error)
	Photos(ctx context.Context, actor models.Actor, id string) ([]*models.ReturnPhoto, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	UpdatePreferences(ctx context.Context, userID string, p models.NotificationPreferences) error
}

type Shipments interface {
	UpsertShipment(ctx context.Context, sh *models.Shipment) error
	GetShipment(ctx context.Context, id string) (*models.Shipment, error)
	ApproveShipment(ctx context.Context, id string, at time.Time) (*models.Shipment, bool, error)
}

type ShipmentNotifier interface {
	ShipmentApproved(ctx context.Context, sh models.Shipment) []models.DispatchResult
}

type Toggles interface {
	Overrides(ctx context.Context) (map[models.Category]bool, error)
	SetToggle(ctx context.Context, category models.Category, enabled bool) error
	ClearToggle(ctx context.Context, category models.Category) error
}

type Gate interface {
	IsCategoryEnabled(ctx context.Context, category models.Category) bool
}

type AuditReader interface {
	ListAudit(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error)
}

type Deps struct {
	Returns   Returns
	Users     Users
	Shipments Shipments
	Notifier  ShipmentNotifier
	Toggles   Toggles
	Gate      Gate
	Audit     AuditReader
}

type API struct {
	Deps
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func New(d Deps, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// text that ends up in mail headers
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	return &API{
		Deps:     d,
		validate: v,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Routes registers the JSON API on r. Optional collaborators left nil leave their routes out.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/returns", func(r chi.Router) {
			r.Post("/", a.createReturn)
			r.Get("/", a.listReturns)
			r.Route("/{returnID}", func(r chi.Router) {
				r.Get("/", a.getReturn)
				r.Post("/status", a.transitionStatus)
				r.Put("/seller-notes", a.updateSellerNotes)
				r.Put("/admin-notes", a.updateAdminNotes)
				r.Post("/controlled", a.toggleControlled)
				r.Put("/assignment", a.assign)
				r.Delete("/assignment", a.unassign)
				r.Post("/photos", a.addPhoto)
				r.Get("/photos", a.listPhotos)
			})
		})

		if a.Users != nil {
			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/", a.getUser)
				r.Put("/", a.upsertUser)
				r.Put("/preferences", a.updatePreferences)
			})
		}

		if a.Shipments != nil {
			r.Route("/shipments/{shipmentID}", func(r chi.Router) {
				r.Get("/", a.getShipment)
				r.Put("/", a.upsertShipment)
				r.Post("/approve", a.approveShipment)
			})
		}

		if a.Toggles != nil {
			r.Route("/notifications/toggles", func(r chi.Router) {
				r.Get("/", a.listToggles)
				r.Put("/{category}", a.setToggle)
				r.Delete("/{category}", a.clearToggle)
			})
		}

		if a.Audit != nil {
			r.Get("/notifications/audit", a.listAudit)
		}
	})
}
