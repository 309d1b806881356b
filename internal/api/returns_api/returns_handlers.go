package returns_api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/returns"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (a *API) createReturn(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req createReturnRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.Returns.CreateReturn(r.Context(), actor, models.ReturnCreateInput{
		SellerID:    req.SellerID,
		OrderNumber: req.OrderNumber,
		Reason:      req.Reason,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultResponse(res))
}

func (a *API) getReturn(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	rec, err := a.Returns.Get(r.Context(), actor, chi.URLParam(r, "returnID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// listReturns accepts status, order, sellerId, from, to, limit and offset query parameters.
// from/to take RFC 3339 timestamps or plain dates; a plain "to" date covers the whole day.
func (a *API) listReturns(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := models.ReturnFilter{
		Status:      models.ReturnStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		SellerID:    strings.TrimSpace(q.Get("sellerId")),
		OrderNumber: strings.TrimSpace(q.Get("order")),
	}
	if f.CreatedFrom, err = parseBound(q.Get("from"), false); err != nil {
		a.writeError(w, r, models.NewValidationError("from", err.Error()))
		return
	}
	if f.CreatedTo, err = parseBound(q.Get("to"), true); err != nil {
		a.writeError(w, r, models.NewValidationError("to", err.Error()))
		return
	}
	if f.Limit, err = parseNonNegative(q.Get("limit")); err != nil {
		a.writeError(w, r, models.NewValidationError("limit", err.Error()))
		return
	}
	if f.Offset, err = parseNonNegative(q.Get("offset")); err != nil {
		a.writeError(w, r, models.NewValidationError("offset", err.Error()))
		return
	}

	recs, err := a.Returns.List(r.Context(), actor, f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*models.ReturnRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) transitionStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	a.mutateWith(w, r, &req, func(actor models.Actor, id string) (returns.Result, error) {
		return a.Returns.TransitionStatus(r.Context(), actor, id, models.ReturnStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
	})
}

func (a *API) updateSellerNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	a.mutateWith(w, r, &req, func(actor models.Actor, id string) (returns.Result, error) {
		return a.Returns.UpdateSellerNotes(r.Context(), actor, id, req.Notes)
	})
}

func (a *API) updateAdminNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	a.mutateWith(w, r, &req, func(actor models.Actor, id string) (returns.Result, error) {
		return a.Returns.UpdateAdminNotes(r.Context(), actor, id, req.Notes)
	})
}

func (a *API) toggleControlled(w http.ResponseWriter, r *http.Request) {
	a.mutateWith(w, r, nil, func(actor models.Actor, id string) (returns.Result, error) {
		return a.Returns.ToggleControlled(r.Context(), actor, id)
	})
}

func (a *API) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	a.mutateWith(w, r, &req, func(actor models.Actor, id string) (returns.Result, error) {
		return a.Returns.Assign(r.Context(), actor, id, strings.TrimSpace(req.AssigneeID))
	})
}

func (a *API) unassign(w http.ResponseWriter, r *http.Request) {
	a.mutateWith(w, r, nil, func(actor models.Actor, id string) (returns.Result, error) {
		return a.Returns.Unassign(r.Context(), actor, id)
	})
}

func (a *API) addPhoto(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req photoRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, results, err := a.Returns.AddPhoto(r.Context(), actor, chi.URLParam(r, "returnID"), req.URL)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, photoResponse{Photo: p, Notifications: toNotificationViews(results)})
}

func (a *API) listPhotos(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	photos, err := a.Returns.Photos(r.Context(), actor, chi.URLParam(r, "returnID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if photos == nil {
		photos = []*models.ReturnPhoto{}
	}
	writeJSON(w, http.StatusOK, photos)
}

// mutateWith decodes body into req (when non-nil), runs fn and writes the committed record
// together with the outcome of every notification it triggered.
func (a *API) mutateWith(w http.ResponseWriter, r *http.Request, req any, fn func(actor models.Actor, id string) (returns.Result, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if req != nil {
		if err := a.decode(r, req); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	id := chi.URLParam(r, "returnID")
	res, err := fn(actor, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	for _, n := range res.Notifications {
		if !n.Delivered() {
			a.log.Warn("return updated but notification failed",
				zap.String("return_id", id),
				zap.String("category", string(n.Category)))
		}
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

func parseBound(v string, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseNonNegative(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
