package httpapi

import (
	"encoding/json"
	"net/http"

	"ragkit/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFromError maps a wrapped apperr.Error to its documented HTTP
// surface; unrecognized errors default to 500.
func statusFromError(err error) int {
	if e, ok := apperr.As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
