package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the status of an account transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed" // Terminal: success
	TransactionStatusFailed    TransactionStatus = "failed"    // Terminal: failed
)

// ValidTransactionStatuses contains all valid transaction statuses
var ValidTransactionStatuses = map[TransactionStatus]bool{
	TransactionStatusPending:   true,
	TransactionStatusCompleted: true,
	TransactionStatusFailed:    true,
}

// ValidTransactionTransitions defines allowed status transitions
var ValidTransactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted: {}, // Terminal state
	TransactionStatusFailed:    {}, // Terminal state
}

// IsValid checks if the status is a valid transaction status
func (s TransactionStatus) IsValid() bool {
	return ValidTransactionStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s TransactionStatus) CanTransitionTo(newStatus TransactionStatus) bool {
	allowed, exists := ValidTransactionTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// ValidateTransition validates and returns error if transition is invalid
func (s TransactionStatus) ValidateTransition(newStatus TransactionStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid transaction status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Label is the human readable status used in history rows
func (s TransactionStatus) Label() string {
	switch s {
	case TransactionStatusPending:
		return "Pending"
	case TransactionStatusCompleted:
		return "Completed"
	case TransactionStatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// PaymentMethod is the funding rail a deposit goes through
type PaymentMethod string

const (
	PaymentMethodBank   PaymentMethod = "bank"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodCrypto PaymentMethod = "crypto"
)

// PaymentMethods lists the supported methods in display order
var PaymentMethods = []PaymentMethod{PaymentMethodBank, PaymentMethodPayPal, PaymentMethodCrypto}

// IsValid checks if the method is one of the supported payment methods
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBank, PaymentMethodPayPal, PaymentMethodCrypto:
		return true
	}
	return false
}

// TransactionType classifies a history entry
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeRefund     TransactionType = "refund"
)

// Transaction is an account transaction as reported by the account API
type Transaction struct {
	ID     string            `json:"id"`
	Type   TransactionType   `json:"type"`
	Method PaymentMethod     `json:"method"`
	Date   time.Time         `json:"date"`
	Amount decimal.Decimal   `json:"amount"`
	Status TransactionStatus `json:"status"`
}
