package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

// RateLimit rejects requests once the client's bucket is empty. Clients are
// keyed by remote IP. Health and metrics endpoints are never limited.
func RateLimit(limiter *ratelimit.Limiter, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(clientKey(r)) {
				if m != nil {
					m.RateLimited.Inc()
				}
				retry := max(1, int(limiter.RetryAfter().Seconds()+0.5))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
