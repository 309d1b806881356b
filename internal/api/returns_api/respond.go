package returns_api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// actorFrom reads the caller identity set by the upstream gateway. A missing role means seller.
func actorFrom(r *http.Request) (models.Actor, error) {
	a := models.Actor{
		UserID: strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role:   models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
	}
	if a.Role == "" {
		a.Role = models.RoleSeller
	}
	if !a.Role.Valid() {
		return a, models.NewValidationError(HeaderActorRole, "unknown role "+string(a.Role))
	}
	return a, nil
}

func (a *API) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("body", "invalid json")
	}
	return a.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := map[string][]string{}
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Fields: fields})
	case models.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case models.IsAuthorization(err):
		a.log.Info("request forbidden", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case models.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrVersionConflict):
		a.log.Warn("version conflict", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusConflict, errorBody{Error: "record was modified concurrently, retry"})
	default:
		a.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
