package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout (30 seconds)
	DefaultRequestTimeout = 30 * time.Second

	timeoutBody = `{"success":false,"error":"Service Unavailable","message":"Request timed out"}`
)

// Timeout creates a middleware that enforces a timeout on request handlers.
// The handler's context is cancelled when the timeout fires and the client
// gets a JSON 503.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		handler := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handlers that answer in time replace this with their own header
			w.Header().Set("Content-Type", "application/json")
			handler.ServeHTTP(w, r)
		})
	}
}
