package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logpkg "github.com/benvon/zentask/internal/logger"
	"github.com/benvon/zentask/internal/request"
	"go.uber.org/zap"
)

// ErrorResponse is the body of errors produced by middleware. It matches the
// handlers' error envelope.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// Recoverer turns handler panics into a logged 500. Panic values never reach
// the client.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("panic_recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("request_id", request.IDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				if tw.wroteHeader {
					return
				}
				respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred", logger)
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// headerTracker records whether a status line has gone out
type headerTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *headerTracker) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

func respondErrorJSON(w http.ResponseWriter, r *http.Request, status int, errorType, message string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := ErrorResponse{
		Error:     errorType,
		Message:   message,
		RequestID: request.IDFromContext(r.Context()),
		Path:      logpkg.SanitizePath(r.URL.Path),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Debug("error_response_write_failed", zap.Int("status_code", status), zap.Error(err))
	}
}
