package returns_api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func selfOrAdmin(r *http.Request, userID, action string) (models.Actor, error) {
	actor, err := actorFrom(r)
	if err != nil {
		return actor, err
	}
	if actor.UserID == "" || (!actor.IsAdmin() && actor.UserID != userID) {
		return actor, &models.AuthorizationError{ActorID: actor.UserID, Action: action}
	}
	return actor, nil
}

func adminOnly(r *http.Request, action string) (models.Actor, error) {
	actor, err := actorFrom(r)
	if err != nil {
		return actor, err
	}
	if actor.UserID == "" || !actor.IsAdmin() {
		return actor, &models.AuthorizationError{ActorID: actor.UserID, Action: action}
	}
	return actor, nil
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if _, err := selfOrAdmin(r, id, "view user"); err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.Users.GetUser(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// upsertUser creates or replaces a user profile. Only admins may grant the admin role.
func (a *API) upsertUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	actor, err := selfOrAdmin(r, id, "edit user")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req userRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleSeller
	}
	if role == models.RoleAdmin && !actor.IsAdmin() {
		a.writeError(w, r, &models.AuthorizationError{ActorID: actor.UserID, Action: "grant admin role"})
		return
	}

	u := &models.User{ID: id, Email: strings.TrimSpace(req.Email), Name: req.Name, Role: role, Prefs: defaultPreferences}
	if req.Preferences != nil {
		u.Prefs = req.Preferences.toModel()
	} else if existing, err := a.Users.GetUser(r.Context(), id); err == nil {
		u.Prefs = existing.Prefs
	} else if !models.IsNotFound(err) {
		a.writeError(w, r, err)
		return
	}

	if err := a.Users.UpsertUser(r.Context(), u); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updatePreferences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if _, err := selfOrAdmin(r, id, "edit preferences"); err != nil {
		a.writeError(w, r, err)
		return
	}
	var req preferencesRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	p := req.toModel()
	if err := a.Users.UpdatePreferences(r.Context(), id, p); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) getShipment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sh, err := a.Shipments.GetShipment(r.Context(), chi.URLParam(r, "shipmentID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if actor.UserID == "" || (!actor.IsAdmin() && actor.UserID != sh.OwnerUserID) {
		a.writeError(w, r, &models.AuthorizationError{ActorID: actor.UserID, Action: "view shipment"})
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (a *API) upsertShipment(w http.ResponseWriter, r *http.Request) {
	if _, err := adminOnly(r, "edit shipment"); err != nil {
		a.writeError(w, r, err)
		return
	}
	var req shipmentRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sh := &models.Shipment{
		ID:             chi.URLParam(r, "shipmentID"),
		OwnerUserID:    req.OwnerUserID,
		TrackingID:     req.TrackingID,
		TrackingNumber: req.TrackingNumber,
		RecipientName:  req.RecipientName,
		Destination:    req.Destination,
	}
	if err := a.Shipments.UpsertShipment(r.Context(), sh); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

// approveShipment stamps the approval once; repeated calls return the shipment without notifying again.
func (a *API) approveShipment(w http.ResponseWriter, r *http.Request) {
	actor, err := adminOnly(r, "approve shipment")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sh, approved, err := a.Shipments.ApproveShipment(r.Context(), chi.URLParam(r, "shipmentID"), a.now())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := shipmentResponse{Shipment: sh, Approved: approved, Notifications: []notificationView{}}
	if approved && a.Notifier != nil {
		a.log.Info("shipment approved", zap.String("shipment_id", sh.ID), zap.String("actor", actor.UserID))
		resp.Notifications = toNotificationViews(a.Notifier.ShipmentApproved(r.Context(), *sh))
	}
	writeJSON(w, http.StatusOK, resp)
}

// listToggles reports the effective state of every category and whether an override is stored.
func (a *API) listToggles(w http.ResponseWriter, r *http.Request) {
	if _, err := adminOnly(r, "view toggles"); err != nil {
		a.writeError(w, r, err)
		return
	}
	overrides, err := a.Toggles.Overrides(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]toggleView, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		v, overridden := overrides[c]
		if a.Gate != nil {
			v = a.Gate.IsCategoryEnabled(r.Context(), c)
		} else if !overridden {
			v = true
		}
		out = append(out, toggleView{Category: c, Enabled: v, Overridden: overridden})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) setToggle(w http.ResponseWriter, r *http.Request) {
	actor, err := adminOnly(r, "set toggle")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := categoryParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req toggleRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Toggles.SetToggle(r.Context(), c, *req.Enabled); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Info("global toggle set",
		zap.String("category", string(c)),
		zap.Bool("enabled", *req.Enabled),
		zap.String("actor", actor.UserID))
	writeJSON(w, http.StatusOK, toggleView{Category: c, Enabled: *req.Enabled, Overridden: true})
}

func (a *API) clearToggle(w http.ResponseWriter, r *http.Request) {
	actor, err := adminOnly(r, "clear toggle")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := categoryParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Toggles.ClearToggle(r.Context(), c); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Info("global toggle cleared", zap.String("category", string(c)), zap.String("actor", actor.UserID))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	if _, err := adminOnly(r, "view notification log"); err != nil {
		a.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := models.AuditFilter{
		Category: models.Category(q.Get("category")),
		Status:   models.RecipientStatus(q.Get("status")),
		UserID:   q.Get("userId"),
	}
	if f.Category != "" && !f.Category.Valid() {
		a.writeError(w, r, models.NewValidationError("category", "unknown category "+string(f.Category)))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, r, models.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		f.Limit = n
	}
	entries, err := a.Audit.ListAudit(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditViews(entries))
}

func categoryParam(r *http.Request) (models.Category, error) {
	c := models.Category(chi.URLParam(r, "category"))
	if !c.Valid() {
		return "", models.NewValidationError("category", "unknown category "+string(c))
	}
	return c, nil
}
