package middleware

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/app-builder/internal/auth"
	"github.com/sakif/app-builder/internal/ratelimit"
)

// RateLimit rejects requests over the limiter's quota with 429. The key is
// the authenticated user when known, else the client address (RealIP must
// run first). A nil limiter disables the check.
func RateLimit(limiter ratelimit.Limiter, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(key); err == nil {
				key = host
			}
			if userID, ok := auth.UserIDFromContext(r.Context()); ok {
				key = "user:" + userID
			}
			if !limiter.Allow(r.Context(), scope+":"+key) {
				logger.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("key", key),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests, slow down"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
