package entities

import (
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the only currency deposits are created in
const DefaultCurrency = "USD"

// DepositRequest is sent to the deposit service when the user confirms
type DepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Currency      string          `json:"currency"`
}

// DepositResult is what the deposit service returns for a created deposit
type DepositResult struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url,omitempty"`
	Address       string `json:"address,omitempty"`
}

// PaymentResult is the payment service reply to "I have paid"
type PaymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FeeSchedule maps a payment method to its fractional fee rate
type FeeSchedule map[PaymentMethod]decimal.Decimal

// DefaultFeeSchedule returns the built-in schedule used when the fee service is unavailable
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		PaymentMethodBank:   decimal.RequireFromString("0.02"),
		PaymentMethodPayPal: decimal.RequireFromString("0.035"),
		PaymentMethodCrypto: decimal.RequireFromString("0.01"),
	}
}

// Rate returns the rate for a method, zero when the method is unknown
func (s FeeSchedule) Rate(method PaymentMethod) decimal.Decimal {
	if rate, ok := s[method]; ok {
		return rate
	}
	return decimal.Zero
}

// Clone returns an independent copy of the schedule
func (s FeeSchedule) Clone() FeeSchedule {
	out := make(FeeSchedule, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
