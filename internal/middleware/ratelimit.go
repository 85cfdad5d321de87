package middleware

import (
	"net/http"
	"strconv"
)

// RateLimitedMessage is the body text returned with 429 responses.
const RateLimitedMessage = "Too many requests. Try again later."

// RateLimit rejects requests once the key returned by keyFn has used up its
// allowance for the current window. Rejected requests never reach next.
func (m *Middleware) RateLimit(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.limiter == nil || !m.cfg.RateLimit.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			if !m.limiter.Allow(key) {
				m.log.Warn().
					Str("client_ip", key).
					Str("path", r.URL.Path).
					Msg("rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(int(m.limiter.Window().Seconds())))
				writeJSONError(w, http.StatusTooManyRequests, RateLimitedMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey returns the client IP address as the rate limit key
func IPKey(r *http.Request) string {
	return ClientIP(r)
}
