package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency that can report its health
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// HealthCheck calls f(ctx)
func (f PingFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker handles health check requests
type HealthChecker struct {
	deps    map[string]Pinger
	version string
	logger  *zap.Logger
}

// NewHealthChecker creates a new health checker. Nil dependencies are skipped.
func NewHealthChecker(version string, log *zap.Logger, deps map[string]Pinger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	checked := make(map[string]Pinger, len(deps))
	for name, dep := range deps {
		if dep != nil {
			checked[name] = dep
		}
	}
	return &HealthChecker{deps: checked, version: version, logger: log}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. With ?mode=extended every
// dependency is pinged and any failure yields 503.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string, len(h.deps))
		for name, dep := range h.deps {
			if err := dep.HealthCheck(ctx); err != nil {
				response.Status = "unhealthy"
				checks[name] = "unhealthy"
				h.logger.Warn("health_check_failed", zap.String("dependency", name), zap.Error(err))
				continue
			}
			checks[name] = "healthy"
		}
		response.Checks = checks

		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed_to_encode_health_response", zap.Error(err))
	}
}

// Version handles the /version endpoint
func (h *HealthChecker) Version(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		h.logger.Error("failed_to_encode_version_response", zap.Error(err))
	}
}
