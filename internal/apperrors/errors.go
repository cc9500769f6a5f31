package apperrors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body the mobile client expects: a flat
// message with the status code carrying the error kind.
type ErrorResponse struct {
	Message string `json:"message"`
}

// WriteError writes a JSON error body with the given status code.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Message: message}); err != nil {
		return
	}
}

// WriteJSON writes a success payload with the given status code.
func WriteJSON(w http.ResponseWriter, r *http.Request, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

// WriteInternalError is a helper for 500 responses
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, message)
}

// WriteBadRequest is a helper for 400 responses
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, message)
}

// WriteUnauthorized is a helper for 401 responses
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, message)
}

// WriteForbidden is a helper for 403 responses
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, message)
}

// WriteNotFound is a helper for 404 responses
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, message)
}

// WriteConflict is a helper for 409 responses
func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, message)
}

// WriteServiceUnavailable is a helper for 503 responses
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, message)
}
