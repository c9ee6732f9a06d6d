package deposit

import (
	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/shopspring/decimal"
)

// Quote is the fee breakdown for a deposit amount. Values are not rounded.
type Quote struct {
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// QuoteDisplay is the formatted form of a Quote
type QuoteDisplay struct {
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
	Total  string `json:"total"`
}

// CalculateFee computes fee = amount * rate[method] and total = amount + fee.
// Negative amounts are treated as zero and unknown methods have a zero rate,
// so the result is never negative.
func CalculateFee(amount decimal.Decimal, method entities.PaymentMethod, schedule entities.FeeSchedule) Quote {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	rate := schedule.Rate(method)
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	fee := amount.Mul(rate)
	return Quote{
		Amount: amount,
		Rate:   rate,
		Fee:    fee,
		Total:  amount.Add(fee),
	}
}

// Display formats the quote for the dashboard
func (q Quote) Display() QuoteDisplay {
	return QuoteDisplay{
		Amount: FormatUSD(q.Amount),
		Fee:    FormatUSD(q.Fee),
		Total:  FormatUSD(q.Total),
	}
}

// FormatUSD renders a dollar amount rounded half away from zero to cents
func FormatUSD(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}
