package middleware

import (
	"net/http"

	"github.com/benvon/zentask/internal/request"
)

// RealIP resolves the client address once per request and stores it for
// request.ClientIP. Forwarding headers are honored only from trusted proxies,
// so a direct client cannot pick its own rate limit key.
func RealIP(proxies *request.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.Resolve(r)
			next.ServeHTTP(w, r.WithContext(request.WithClientIP(r.Context(), ip)))
		})
	}
}
