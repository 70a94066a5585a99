package api

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes a JSON response with the given status code and data.
// If data is nil, only the status code and Content-Type header are written.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// verdictError is the body of a failed single validation. It has the
// leading fields of a verdict so clients can read both the same way.
type verdictError struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

func respondVerdictError(w http.ResponseWriter, status int, reason string) {
	respondJSON(w, status, verdictError{Valid: false, Reason: reason})
}
