package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/lesionscan/internal/api/response"
	"github.com/kiranshivaraju/lesionscan/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting per client IP via the cache.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// Limit counts requests per client IP. Place chi's RealIP middleware in front
// of it when running behind a proxy.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if client == "" {
			next.ServeHTTP(w, r)
			return
		}

		count, ttl, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(client), rateLimitWindow)
		if err != nil || count == 0 {
			// Cache down or disabled: fail open.
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(ttl).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(ttl)))
			response.Error(w, http.StatusTooManyRequests, "Too many requests", nil, "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds the time left in the window up to whole seconds.
func retryAfterSeconds(ttl time.Duration) int {
	return max(1, int(math.Ceil(ttl.Seconds())))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
