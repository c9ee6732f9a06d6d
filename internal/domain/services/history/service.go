// Package history projects account transactions into dashboard rows.
package history

import (
	"context"
	"fmt"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/services/deposit"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02 15:04"

// TransactionSource is the transaction service
type TransactionSource interface {
	GetTransactionHistory(ctx context.Context) ([]entities.Transaction, error)
}

// Row is one line of the transaction history table
type Row struct {
	ID          string                     `json:"id"`
	Type        entities.TransactionType   `json:"type"`
	Method      entities.PaymentMethod     `json:"method"`
	Date        string                     `json:"date"`
	Amount      string                     `json:"amount"`
	RawAmount   decimal.Decimal            `json:"raw_amount"`
	Status      entities.TransactionStatus `json:"status"`
	StatusLabel string                     `json:"status_label"`
}

type Service struct {
	source TransactionSource
	logger *zap.Logger
}

func NewService(source TransactionSource, logger *zap.Logger) *Service {
	return &Service{source: source, logger: logger}
}

// List fetches the history and returns it in the order the source reported it
func (s *Service) List(ctx context.Context) ([]Row, error) {
	txs, err := s.source.GetTransactionHistory(ctx)
	if err != nil {
		s.logger.Warn("Failed to load transaction history", zap.Error(err))
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}
	return Project(txs), nil
}

// Project converts transactions to rows without reordering or modifying them
func Project(txs []entities.Transaction) []Row {
	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, Row{
			ID:          tx.ID,
			Type:        tx.Type,
			Method:      tx.Method,
			Date:        tx.Date.Format(dateLayout),
			Amount:      formatSigned(tx.Amount),
			RawAmount:   tx.Amount,
			Status:      tx.Status,
			StatusLabel: tx.Status.Label(),
		})
	}
	return rows
}

func formatSigned(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-" + deposit.FormatUSD(v.Abs())
	}
	return deposit.FormatUSD(v)
}
