// Package httputil holds the response helpers and request logging shared
// by the report server's handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes v with 200 OK.
func WriteJSONOK(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusOK, v)
}

// WriteError writes {"error": msg} with the given status code.
func WriteError(w http.ResponseWriter, status int, format string, args ...any) {
	WriteJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// WriteHTML writes a rendered page with 200 OK.
func WriteHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		log.Printf("failed to write html response: %v", err)
	}
}

// MethodNotAllowed writes a 405 listing the allowed methods.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// NotFound writes a 404 naming what was missing.
func NotFound(w http.ResponseWriter, what string) {
	WriteError(w, http.StatusNotFound, "%s not found", what)
}
