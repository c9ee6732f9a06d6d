package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AuthRateLimiter provides stricter rate limiting for authentication endpoints
type AuthRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewAuthRateLimiter creates a rate limiter for auth endpoints
// requestsPerMinute: max requests allowed per minute per IP
func NewAuthRateLimiter(requestsPerMinute int) *AuthRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	return &AuthRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    requestsPerMinute,
		now:      time.Now,
	}
}

// allow spends one token for key, measured against the limiter's clock
func (al *AuthRateLimiter) allow(key string) bool {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.now()
	v, exists := al.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(al.rate, al.burst)}
		al.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Cleanup forgets clients not seen for maxIdle and returns how many were removed
func (al *AuthRateLimiter) Cleanup(maxIdle time.Duration) int {
	al.mu.Lock()
	defer al.mu.Unlock()

	cutoff := al.now().Add(-maxIdle)
	removed := 0
	for key, v := range al.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(al.visitors, key)
			removed++
		}
	}
	return removed
}

// Limit returns middleware that rate limits by IP
func (al *AuthRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !al.allow(ip) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, entities.ErrorResponse{
				Code:    "RATE_LIMIT_EXCEEDED",
				Message: "Too many requests. Please try again later.",
				Details: map[string]interface{}{
					"retry_after": 60,
					"request_id":  c.GetString("request_id"),
				},
			})
			return
		}
		c.Next()
	}
}
