package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"splitledger/internal/core"
	applog "splitledger/internal/log"
)

// envelope is the JSON shape of every response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response body", applog.FieldError, err.Error())
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeError maps a domain error to an HTTP status and writes the failure
// envelope. Internal errors are logged with their cause but never exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(core.KindOf(err))
	if status == http.StatusInternalServerError {
		logger := applog.FromContext(r.Context())
		logger.ErrorContext(r.Context(), "Request failed", applog.FieldError, err.Error())
	}
	writeFailure(w, status, core.MessageOf(err))
}

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
