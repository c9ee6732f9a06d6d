package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	"github.com/antidetect/dashboard_service/internal/domain/services/auth"
	"github.com/antidetect/dashboard_service/internal/pkg/util"
)

// SessionRestorer resolves a browser session id
type SessionRestorer interface {
	Restore(ctx context.Context, sessionID, userAgent string) (*repositories.StoredSession, error)
}

// Authentication requires a live session. The id is read from the bearer
// header, then the session cookie, then the "session" query parameter which
// browsers use for websocket upgrades.
func Authentication(restorer SessionRestorer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := sessionIDFromRequest(c)
		if sessionID == "" {
			common.RespondUnauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		session, err := restorer.Restore(c.Request.Context(), sessionID, c.Request.UserAgent())
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrSessionExpired):
				common.RespondUnauthorized(c, "Your session has expired, please sign in again")
			case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrSessionMismatch):
				common.RespondUnauthorized(c, "Invalid session")
			default:
				logger.Error("Failed to restore session",
					zap.Error(err),
					zap.String("session", util.MaskTail(sessionID, 6)),
					zap.String("request_id", common.GetRequestID(c)),
				)
				common.RespondInternalError(c, "Failed to verify session")
			}
			c.Abort()
			return
		}

		c.Set(common.ContextKeySession, session)
		c.Set(common.ContextKeyUserID, session.User.ID)
		c.Next()
	}
}

func sessionIDFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(common.SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("session")
}
