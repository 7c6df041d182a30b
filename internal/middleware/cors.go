package middleware

import (
	"net/http"
	"strings"

	"github.com/benvon/zentask/internal/request"
	"github.com/rs/cors"
)

// DefaultFrontendOrigin is always allowed so local development works out of the box
const DefaultFrontendOrigin = "http://localhost:3000"

// ParseOrigins splits a comma-separated FRONTEND_URL into unique origins,
// always including DefaultFrontendOrigin
func ParseOrigins(frontendURL string) []string {
	origins := []string{DefaultFrontendOrigin}
	for _, origin := range strings.Split(frontendURL, ",") {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "" {
			continue
		}
		exists := false
		for _, existing := range origins {
			if existing == trimmed {
				exists = true
				break
			}
		}
		if !exists {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// CORS creates CORS middleware that handles CORS headers and OPTIONS preflight requests
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", request.HeaderRequestID},
		ExposedHeaders: []string{
			request.HeaderRequestID,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		MaxAge: 86400, // Cache preflight for 24 hours
	})
	return c.Handler
}

// CORSFromEnv creates CORS middleware from the FRONTEND_URL setting
func CORSFromEnv(frontendURL string) func(http.Handler) http.Handler {
	return CORS(ParseOrigins(frontendURL))
}
