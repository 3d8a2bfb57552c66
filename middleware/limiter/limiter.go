package limiter

import (
	"net/http"

	"github.com/sweetpotato0/coverwise/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter rejects requests beyond a token-bucket rate with 429.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond requests on average with bursts of burst.
// A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Name returns the middleware name
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Allow reports whether a request may proceed now.
func (m *RateLimiter) Allow() bool {
	return m.limiter == nil || m.limiter.Allow()
}

// Wrap checks the rate limit before calling next.
func (m *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Allow() {
			middleware.WriteError(w, http.StatusTooManyRequests, middleware.ErrRateLimitExceeded.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
