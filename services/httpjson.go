package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/trainhub/tms/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

type errorResponse struct {
	Code  apperr.Code `json:"code"`
	Error string      `json:"error"`
}

// writeError is the only place service errors become HTTP statuses.
// Handlers never pick status codes themselves; internal faults are logged
// and surfaced as a generic message so internals do not leak.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch code {
	case apperr.CodeValidation:
		status = http.StatusUnprocessableEntity
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperr.CodeForbidden:
		status = http.StatusForbidden
	case apperr.CodeConflict, apperr.CodeIntegrityBlock:
		status = http.StatusConflict
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	default:
		slog.Error("Unhandled service error", "error", err)
		message = "internal server error"
	}

	writeJSON(w, status, errorResponse{Code: code, Error: message})
}
