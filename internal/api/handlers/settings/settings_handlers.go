package settings

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/domain/entities"
	settingssvc "github.com/antidetect/dashboard_service/internal/domain/services/settings"
)

// SettingsService validates and submits the settings forms
type SettingsService interface {
	Profile(ctx context.Context) (*entities.User, error)
	UpdateProfile(ctx context.Context, current entities.User, form settingssvc.ProfileForm) (*entities.User, error)
	ChangePassword(ctx context.Context, userID string, form settingssvc.PasswordForm) error
	BeginTwoFactor(user entities.User) (*settingssvc.TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, userID string, form settingssvc.TwoFactorForm) error
}

// SessionUpdater keeps the session's cached user in step with the account
type SessionUpdater interface {
	UpdateUser(ctx context.Context, sessionID string, user entities.User) error
}

type SettingsHandlers struct {
	settings SettingsService
	sessions SessionUpdater
	logger   *zap.Logger
}

func NewSettingsHandlers(settings SettingsService, sessions SessionUpdater, logger *zap.Logger) *SettingsHandlers {
	return &SettingsHandlers{settings: settings, sessions: sessions, logger: logger}
}

// TwoFactorSetupResponse is the JSON form of a pending two-factor setup
type TwoFactorSetupResponse struct {
	*settingssvc.TwoFactorSetup
	QRCode string `json:"qr_code"`
}

// GetProfile handles GET /api/v1/settings/profile
func (h *SettingsHandlers) GetProfile(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}
	user, err := h.settings.Profile(common.RequestContext(c))
	if err != nil {
		h.logger.Warn("Failed to load profile", zap.String("user_id", session.User.ID), zap.Error(err))
		common.HandleServiceError(c, err, "Profile")
		return
	}
	h.syncSession(c, session.ID, *user)
	common.RespondSuccess(c, user)
}

// UpdateProfile handles PUT /api/v1/settings/profile
func (h *SettingsHandlers) UpdateProfile(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}
	var form settingssvc.ProfileForm
	if !common.BindAndValidate(c, &form) {
		return
	}

	user, err := h.settings.UpdateProfile(common.RequestContext(c), session.User, form)
	if err != nil {
		common.HandleServiceError(c, err, "Profile")
		return
	}
	h.syncSession(c, session.ID, *user)
	common.RespondSuccess(c, user)
}

// ChangePassword handles PUT /api/v1/settings/password
func (h *SettingsHandlers) ChangePassword(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}
	var form settingssvc.PasswordForm
	if !common.BindAndValidate(c, &form) {
		return
	}

	if err := h.settings.ChangePassword(common.RequestContext(c), session.User.ID, form); err != nil {
		common.HandleServiceError(c, err, "Account")
		return
	}
	common.RespondNoContent(c)
}

// BeginTwoFactor handles POST /api/v1/settings/2fa/setup. Clients asking for
// image/png get the QR code directly; everyone else gets JSON with a data URL.
func (h *SettingsHandlers) BeginTwoFactor(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}

	setup, err := h.settings.BeginTwoFactor(session.User)
	if err != nil {
		if errors.Is(err, settingssvc.ErrTwoFactorEnabled) {
			common.RespondConflict(c, err.Error())
			return
		}
		h.logger.Error("Failed to start two-factor setup", zap.String("user_id", session.User.ID), zap.Error(err))
		common.RespondInternalError(c, "Failed to start two-factor setup")
		return
	}

	c.Header("Cache-Control", "no-store")
	if strings.Contains(c.GetHeader("Accept"), "image/png") {
		c.Data(http.StatusOK, "image/png", setup.QRCode)
		return
	}
	common.RespondSuccess(c, TwoFactorSetupResponse{
		TwoFactorSetup: setup,
		QRCode:         "data:image/png;base64," + base64.StdEncoding.EncodeToString(setup.QRCode),
	})
}

// EnableTwoFactor handles POST /api/v1/settings/2fa/enable
func (h *SettingsHandlers) EnableTwoFactor(c *gin.Context) {
	session := common.RequireSession(c)
	if session == nil {
		return
	}
	var form settingssvc.TwoFactorForm
	if !common.BindAndValidate(c, &form) {
		return
	}

	err := h.settings.EnableTwoFactor(common.RequestContext(c), session.User.ID, form)
	switch {
	case err == nil:
	case errors.Is(err, settingssvc.ErrInvalidCode):
		common.RespondError(c, http.StatusUnprocessableEntity, "INVALID_CODE", err.Error(), nil)
		return
	case errors.Is(err, settingssvc.ErrNoPendingTwoFactor), errors.Is(err, settingssvc.ErrTwoFactorExpired):
		common.RespondConflict(c, err.Error())
		return
	default:
		common.HandleServiceError(c, err, "Account")
		return
	}

	user := session.User
	user.TwoFactorEnabled = true
	h.syncSession(c, session.ID, user)
	common.RespondSuccess(c, user)
}

func (h *SettingsHandlers) syncSession(c *gin.Context, sessionID string, user entities.User) {
	if err := h.sessions.UpdateUser(c.Request.Context(), sessionID, user); err != nil {
		h.logger.Warn("Failed to update session user", zap.String("user_id", user.ID), zap.Error(err))
	}
}
