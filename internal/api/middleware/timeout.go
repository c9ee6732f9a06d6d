package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutMiddleware bounds the request context. Handlers pass the context to
// the account API, which gives up at the deadline; the resulting
// context.DeadlineExceeded is reported as 504 by common.HandleServiceError.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := withTimeoutIfNeeded(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// withTimeoutIfNeeded adds a timeout only if the context doesn't already have a shorter deadline
func withTimeoutIfNeeded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < timeout {
			// Parent context has shorter deadline, use a no-op cancel
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, timeout)
}
