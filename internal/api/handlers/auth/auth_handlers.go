package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	authsvc "github.com/antidetect/dashboard_service/internal/domain/services/auth"
	"github.com/antidetect/dashboard_service/internal/pkg/util"
)

// SessionProvider opens and closes browser sessions
type SessionProvider interface {
	Login(ctx context.Context, form authsvc.LoginForm, client authsvc.ClientInfo) (*repositories.StoredSession, error)
	Logout(ctx context.Context, sessionID string) error
	Balance(userID string) (*entities.Balance, bool)
}

// AuthHandlers serves sign in, sign out and the current user
type AuthHandlers struct {
	sessions     SessionProvider
	secureCookie bool
	logger       *zap.Logger
}

// NewAuthHandlers creates a new instance of AuthHandlers.
// secureCookie marks the session cookie Secure, which browsers only send over https.
func NewAuthHandlers(sessions SessionProvider, secureCookie bool, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessions:     sessions,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// LoginResponse is returned after a successful sign in
type LoginResponse struct {
	SessionID string            `json:"session_id"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      entities.User     `json:"user"`
	Balance   *entities.Balance `json:"balance,omitempty"`
}

// MeResponse describes the signed-in user
type MeResponse struct {
	User      entities.User     `json:"user"`
	Balance   *entities.Balance `json:"balance,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var form authsvc.LoginForm
	if !common.BindAndValidate(c, &form) {
		return
	}

	session, err := h.sessions.Login(common.RequestContext(c), form, authsvc.ClientInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, authsvc.ErrInvalidCredentials) {
			common.RespondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
			return
		}
		h.logger.Warn("Login failed",
			zap.String("email", util.RedactEmail(form.Email)),
			zap.String("request_id", common.GetRequestID(c)),
			zap.Error(err))
		common.HandleServiceError(c, err, "Account")
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookie, session.ID, maxAge, "/", "", h.secureCookie, true)

	balance, _ := h.sessions.Balance(session.User.ID)
	common.RespondSuccess(c, LoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		User:      session.User,
		Balance:   balance,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}

	if err := h.sessions.Logout(common.RequestContext(c), session.ID); err != nil && !errors.Is(err, authsvc.ErrSessionNotFound) {
		h.logger.Error("Logout failed", zap.String("user_id", session.User.ID), zap.Error(err))
		common.RespondInternalError(c, "Failed to sign out")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookie, "", -1, "/", "", h.secureCookie, true)
	common.RespondNoContent(c)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandlers) Me(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}
	balance, _ := h.sessions.Balance(session.User.ID)
	common.RespondSuccess(c, MeResponse{
		User:      session.User,
		Balance:   balance,
		ExpiresAt: session.ExpiresAt,
	})
}
