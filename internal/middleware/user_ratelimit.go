package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/service"
)

// UserRateLimitMiddleware throttles authenticated API traffic per user.
// Anonymous requests pass through; the session middleware decides whether
// those are allowed at all.
type UserRateLimitMiddleware struct {
	limiter *service.RateLimiter
	limit   int
	window  time.Duration
}

func NewUserRateLimitMiddleware(limiter *service.RateLimiter, limit int, window time.Duration) *UserRateLimitMiddleware {
	return &UserRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
	}
}

func (m *UserRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, resetAt := m.limiter.CheckLimit(r.Context(), service.APIKey(user.ID), m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			log.Warn().Str("userId", user.ID).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
