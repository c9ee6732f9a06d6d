package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/pkg/metrics"
)

// Checker decides whether a request fits its limit
type Checker interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Middleware limits requests per signed-in user, falling back to the client IP.
// When redis is unreachable the request is let through if failOpen is set.
func Middleware(checker Checker, tier string, limit Limit, failOpen bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if userID := c.GetString("user_id"); userID != "" {
			subject = "user:" + userID
		}

		result, err := checker.Allow(c.Request.Context(), tier+":"+subject, limit)
		if err != nil {
			logger.Error("Rate limit check failed", zap.String("tier", tier), zap.Error(err))
			if failOpen {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, entities.ErrorResponse{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "Rate limiting service is temporarily unavailable",
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		if !result.Allowed {
			metrics.RateLimitHitsTotal.WithLabelValues(tier).Inc()
			retryAfter := int64(math.Ceil(result.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			logger.Warn("Rate limit exceeded",
				zap.String("tier", tier),
				zap.String("subject", subject),
				zap.Int64("retry_after_seconds", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, entities.ErrorResponse{
				Code:    "RATE_LIMIT_EXCEEDED",
				Message: "Too many requests, please try again later",
				Details: map[string]interface{}{"retry_after": retryAfter},
			})
			return
		}
		c.Next()
	}
}
