package wallet

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/services/deposit"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// SessionManager hands out the per-user deposit session
type SessionManager interface {
	For(userID, accessToken string) *deposit.Session
	Options() deposit.Options
}

// DepositHandlers drives the deposit page: amount selection, payment method,
// confirmation, the payment dialog and its QR code
type DepositHandlers struct {
	manager SessionManager
	logger  *zap.Logger
}

func NewDepositHandlers(manager SessionManager, logger *zap.Logger) *DepositHandlers {
	return &DepositHandlers{manager: manager, logger: logger}
}

// AmountRequest carries a preset or typed amount. Amounts are strings so the
// exact decimal text the user chose is kept.
type AmountRequest struct {
	Amount string `json:"amount"`
}

// MethodRequest selects the payment method
type MethodRequest struct {
	Method entities.PaymentMethod `json:"method" binding:"required"`
}

// CopyRequest names the payment detail to copy
type CopyRequest struct {
	Field string `json:"field" binding:"required"`
}

// session resolves the caller's deposit session or responds 401
func (h *DepositHandlers) session(c *gin.Context) *deposit.Session {
	stored := common.RequireSession(c)
	if stored == nil {
		return nil
	}
	return h.manager.For(stored.User.ID, stored.Tokens.AccessToken)
}

// GetOptions handles GET /api/v1/deposit/options
func (h *DepositHandlers) GetOptions(c *gin.Context) {
	common.RespondSuccess(c, h.manager.Options())
}

// GetSession handles GET /api/v1/deposit/session
func (h *DepositHandlers) GetSession(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	common.RespondSuccess(c, s.Snapshot())
}

// CloseSession handles DELETE /api/v1/deposit/session: closes the payment dialog
func (h *DepositHandlers) CloseSession(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	common.RespondSuccess(c, s.Close())
}

// SelectPreset handles PUT /api/v1/deposit/session/preset
func (h *DepositHandlers) SelectPreset(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req AmountRequest
	if !common.BindAndValidate(c, &req) {
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		common.RespondBadRequest(c, "Amount must be a number")
		return
	}

	snap, err := s.SelectPreset(amount)
	if err != nil {
		h.respondDepositError(c, err, snap)
		return
	}
	common.RespondSuccess(c, snap)
}

// SetCustomAmount handles PUT /api/v1/deposit/session/custom.
// Any text is accepted; text that is not a positive number selects nothing.
func (h *DepositHandlers) SetCustomAmount(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req AmountRequest
	if !common.BindAndValidate(c, &req) {
		return
	}
	common.RespondSuccess(c, s.SetCustomAmount(req.Amount))
}

// SelectMethod handles PUT /api/v1/deposit/session/method
func (h *DepositHandlers) SelectMethod(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req MethodRequest
	if !common.BindAndValidate(c, &req) {
		return
	}

	snap, err := s.SelectMethod(req.Method)
	if err != nil {
		h.respondDepositError(c, err, snap)
		return
	}
	common.RespondSuccess(c, snap)
}

// Confirm handles POST /api/v1/deposit/session/confirm. The dialog opens
// immediately; the transaction details arrive over the websocket.
func (h *DepositHandlers) Confirm(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	snap, err := s.Confirm()
	if err != nil {
		h.respondDepositError(c, err, snap)
		return
	}
	common.RespondAccepted(c, snap)
}

// MarkPaid handles POST /api/v1/deposit/session/paid
func (h *DepositHandlers) MarkPaid(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	snap, err := s.MarkPaid(common.RequestContext(c))
	if err != nil {
		h.respondDepositError(c, err, snap)
		return
	}
	common.RespondSuccess(c, snap)
}

// Copy handles POST /api/v1/deposit/session/copy
func (h *DepositHandlers) Copy(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req CopyRequest
	if !common.BindAndValidate(c, &req) {
		return
	}
	if err := s.Copy(req.Field); err != nil {
		h.respondDepositError(c, err, s.Snapshot())
		return
	}
	common.RespondNoContent(c)
}

// GetQRCode handles GET /api/v1/deposit/session/qr and returns a PNG
func (h *DepositHandlers) GetQRCode(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			common.RespondBadRequest(c, "size must be between 128 and 1024")
			return
		}
		size = n
	}

	payload, err := s.QRPayload()
	if err != nil {
		h.respondDepositError(c, err, s.Snapshot())
		return
	}
	png, err := deposit.RenderQR(payload, size)
	if err != nil {
		h.logger.Error("Failed to render payment QR code", zap.Error(err))
		common.RespondInternalError(c, "Failed to render QR code")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// respondDepositError maps session errors to responses; the current state
// is included so the page can re-render without another request.
func (h *DepositHandlers) respondDepositError(c *gin.Context, err error, snap deposit.Snapshot) {
	details := map[string]interface{}{"session": snap}
	switch {
	case errors.Is(err, deposit.ErrInvalidAmount):
		common.RespondError(c, http.StatusUnprocessableEntity, "INVALID_AMOUNT", err.Error(), details)
	case errors.Is(err, deposit.ErrUnknownPreset),
		errors.Is(err, deposit.ErrInvalidMethod),
		errors.Is(err, deposit.ErrUnknownField):
		common.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), details)
	case errors.Is(err, deposit.ErrDepositInFlight),
		errors.Is(err, deposit.ErrDialogOpen),
		errors.Is(err, deposit.ErrCheckInFlight),
		errors.Is(err, deposit.ErrTransactionFinal),
		errors.Is(err, deposit.ErrNoTransaction),
		errors.Is(err, deposit.ErrNothingToCopy),
		errors.Is(err, deposit.ErrDialogClosed):
		common.RespondError(c, http.StatusConflict, "INVALID_STATE", err.Error(), details)
	default:
		h.logger.Error("Deposit request failed", zap.String("request_id", common.GetRequestID(c)), zap.Error(err))
		common.HandleServiceError(c, err, "Deposit")
	}
}
