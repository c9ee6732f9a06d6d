package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodySize is 1 MiB
const DefaultMaxBodySize int64 = 1 << 20

// MaxRequestBodySizeMiddleware limits request bodies to maxBytes, or 1 MiB when maxBytes is not positive.
func MaxRequestBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			RespondError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body is too large", nil)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
