package wallet

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/services/history"
)

// BalanceSource serves the cached balance and reloads it on demand
type BalanceSource interface {
	Balance(userID string) (*entities.Balance, bool)
	RefreshBalance(ctx context.Context, userID string) (*entities.Balance, error)
}

// HistorySource lists the signed-in user's transactions
type HistorySource interface {
	List(ctx context.Context) ([]history.Row, error)
}

// ActivitySource reads the user's audit trail
type ActivitySource interface {
	GetUserAuditLogs(ctx context.Context, userID string, limit, offset int) ([]*entities.AuditLog, int64, error)
}

// WalletHandlers serves the account balance, transaction history and activity log
type WalletHandlers struct {
	balances BalanceSource
	history  HistorySource
	activity ActivitySource
	logger   *zap.Logger
}

func NewWalletHandlers(balances BalanceSource, history HistorySource, activity ActivitySource, logger *zap.Logger) *WalletHandlers {
	return &WalletHandlers{
		balances: balances,
		history:  history,
		activity: activity,
		logger:   logger,
	}
}

// TransactionsResponse is the transaction history table
type TransactionsResponse struct {
	Transactions []history.Row `json:"transactions"`
	Count        int           `json:"count"`
}

// ActivityResponse is one page of the audit trail
type ActivityResponse struct {
	Entries []*entities.AuditLog `json:"entries"`
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// GetBalance handles GET /api/v1/account/balance.
// The cached balance is returned unless it is missing or ?refresh=true is passed.
func (h *WalletHandlers) GetBalance(c *gin.Context) {
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	if c.Query("refresh") != "true" {
		if balance, ok := h.balances.Balance(userID); ok {
			common.RespondSuccess(c, balance)
			return
		}
	}

	balance, err := h.balances.RefreshBalance(common.RequestContext(c), userID)
	if err != nil {
		h.logger.Error("Failed to load balance", zap.String("user_id", userID), zap.Error(err))
		common.HandleServiceError(c, err, "Balance")
		return
	}
	common.RespondSuccess(c, balance)
}

// GetTransactions handles GET /api/v1/transactions
func (h *WalletHandlers) GetTransactions(c *gin.Context) {
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	rows, err := h.history.List(common.RequestContext(c))
	if err != nil {
		h.logger.Error("Failed to load transaction history", zap.String("user_id", userID), zap.Error(err))
		common.HandleServiceError(c, err, "Transactions")
		return
	}
	if rows == nil {
		rows = []history.Row{}
	}
	common.RespondSuccess(c, TransactionsResponse{Transactions: rows, Count: len(rows)})
}

// GetActivity handles GET /api/v1/account/activity
func (h *WalletHandlers) GetActivity(c *gin.Context) {
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	page := common.ExtractPagination(c, 20, 100)
	entries, total, err := h.activity.GetUserAuditLogs(c.Request.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		h.logger.Error("Failed to load activity", zap.String("user_id", userID), zap.Error(err))
		common.RespondInternalError(c, "Failed to retrieve account activity")
		return
	}
	if entries == nil {
		entries = []*entities.AuditLog{}
	}
	common.RespondSuccess(c, ActivityResponse{
		Entries: entries,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}
