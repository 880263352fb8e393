package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/provisioning"
	"github.com/homesapp/rentals/internal/types"
)

// errorBody is the single error shape of every endpoint.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
	Step  string `json:"step,omitempty"`
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// decodeJSON decodes the request body into v, rejecting unknown trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// domainErrorToHTTP maps domain errors to HTTP responses.
func domainErrorToHTTP(w http.ResponseWriter, log *zap.Logger, err error) {
	body := errorBody{Error: err.Error()}
	var stepErr *provisioning.StepError
	if errors.As(err, &stepErr) {
		body.Step = stepErr.Step
	}

	var ve *domain.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status, body.Code, body.Field = http.StatusBadRequest, "VALIDATION_ERROR", ve.Field
	case errors.Is(err, domain.ErrNotFound):
		status, body.Code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrVersionConflict):
		status, body.Code = http.StatusConflict, "VERSION_CONFLICT"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, body.Code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrConflict):
		status, body.Code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrForbidden):
		status, body.Code = http.StatusForbidden, "FORBIDDEN"
	case body.Step != "":
		log.Error("provisioning failed", zap.String("step", body.Step), zap.Error(err))
		status, body.Code = http.StatusInternalServerError, "PROVISIONING_FAILED"
	default:
		log.Error("internal error", zap.Error(err))
		body.Code, body.Error = "INTERNAL_ERROR", "internal server error"
	}
	writeJSON(w, status, body)
}

// parseActor extracts the acting identity from request headers.
func parseActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Actor"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor header is required")
		return domain.Actor{}, false
	}
	role := domain.ActorRole(strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Role"))))
	switch role {
	case domain.RoleTenant, domain.RoleOwner, domain.RoleAdmin:
	case "":
		writeError(w, http.StatusBadRequest, "MISSING_ROLE", "X-Actor-Role header is required")
		return domain.Actor{}, false
	default:
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", "unknown actor role: "+string(role))
		return domain.Actor{}, false
	}
	source := r.Header.Get("X-Source")
	if source == "" {
		source = "user"
	}
	return domain.Actor{
		ID:            id,
		Role:          role,
		Source:        source,
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	}, true
}

// queryDate parses an optional date query parameter. ok is false after an
// error response has been written.
func queryDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := types.ParseDate(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "VALIDATION_ERROR", Field: name})
		return time.Time{}, false
	}
	return t, true
}
