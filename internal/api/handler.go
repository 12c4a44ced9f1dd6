// Package api provides HTTP handlers for the portfolio API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Middleware wraps a handler. Route groups take it to apply admin or rate
// limiting guards chosen by the caller.
type Middleware = func(http.Handler) http.Handler

func passthrough(next http.Handler) http.Handler { return next }

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into dst and writes a 400 on
// failure. It reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func orPassthrough(m Middleware) Middleware {
	if m == nil {
		return passthrough
	}
	return m
}
