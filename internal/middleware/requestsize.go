package middleware

import (
	"fmt"
	"net/http"
)

// DefaultMaxRequestSize caps request bodies; a task is a title and two short fields
const DefaultMaxRequestSize int64 = 64 << 10

// MaxRequestSize rejects bodies larger than maxBytes. A declared
// Content-Length over the limit fails fast with 413; undeclared bodies are
// cut off while the handler reads them.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	message := fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytes)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", message, nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
