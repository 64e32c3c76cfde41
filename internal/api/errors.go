package api

import (
	"encoding/json"
	"net/http"

	"github.com/pders01/foro/internal/debuglog"
)

// writeError writes a JSON error body in the shape the hosted service uses.
func writeError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error":   errorType,
		"message": message,
	}); err != nil {
		debuglog.Warnf("failed to encode error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debuglog.Warnf("failed to encode response: %v", err)
	}
}
