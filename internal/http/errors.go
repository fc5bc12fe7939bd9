// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the "error" field.
const (
	codeNotFound     = "not_found"
	codeNotReady     = "not_ready"
	codeShuttingDown = "shutting_down"
	codeValidation   = "validation_error"
	codeInvalidForm  = "invalid_form"
	codeTooLarge     = "upload_too_large"
	codeConflict     = "already_finished"
	codeInternal     = "internal_error"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
