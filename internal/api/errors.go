package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/smarthome-core/internal/identity"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/onboarding"
	"github.com/nerrad567/smarthome-core/internal/smarthome"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError classifies err and writes the matching response. what
// names the resource in not-found and internal messages.
//
// Resources owned by another user are reported as not found so their ids
// cannot be probed.
func writeDomainError(w http.ResponseWriter, err error, what string) {
	var authErr *identity.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		status := http.StatusUnauthorized
		code := ErrCodeUnauthorized
		switch authErr.Reason {
		case identity.ReasonEmailInUse:
			status, code = http.StatusConflict, ErrCodeConflict
		case identity.ReasonWeakPassword, identity.ReasonInvalidEmail:
			status, code = http.StatusBadRequest, ErrCodeValidation
		case identity.ReasonProviderDisabled:
			status, code = http.StatusForbidden, ErrCodeForbidden
		}
		writeError(w, status, code, authErr.Message)
	case errors.Is(err, docstore.ErrValidation),
		errors.Is(err, telemetry.ErrUnknownWindow),
		errors.Is(err, onboarding.ErrNetworkNotFound),
		errors.Is(err, onboarding.ErrNotADevice),
		errors.Is(err, onboarding.ErrPasswordRequired):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, smarthome.ErrHomeNotVisible),
		errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, onboarding.ErrSessionNotFound):
		writeNotFound(w, what+" not found")
	case errors.Is(err, onboarding.ErrWrongStep):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, onboarding.ErrConnectFailed),
		errors.Is(err, telemetry.ErrNoSample):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, "failed to process "+what)
	}
}
