package deposit

import (
	"testing"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateFee_MatchesRate(t *testing.T) {
	schedule := entities.DefaultFeeSchedule()
	amounts := []string{"0", "0.01", "1", "50", "100.5", "999999.99"}

	for _, method := range entities.PaymentMethods {
		for _, raw := range amounts {
			amount := decimal.RequireFromString(raw)
			q := CalculateFee(amount, method, schedule)

			assert.True(t, q.Fee.Equal(amount.Mul(schedule[method])), "%s %s", method, raw)
			assert.False(t, q.Fee.IsNegative())
			assert.True(t, q.Total.Equal(amount.Add(q.Fee)))
		}
	}
}

func TestCalculateFee_BankFifty(t *testing.T) {
	q := CalculateFee(decimal.NewFromInt(50), entities.PaymentMethodBank, entities.DefaultFeeSchedule())

	assert.Equal(t, "1", q.Fee.String())
	assert.Equal(t, "51", q.Total.String())
	assert.Equal(t, QuoteDisplay{Amount: "$50.00", Fee: "$1.00", Total: "$51.00"}, q.Display())
}

func TestCalculateFee_CryptoKeepsPrecision(t *testing.T) {
	q := CalculateFee(decimal.RequireFromString("100.5"), entities.PaymentMethodCrypto, entities.DefaultFeeSchedule())

	assert.Equal(t, "1.005", q.Fee.String())
	assert.Equal(t, "101.505", q.Total.String())
	assert.Equal(t, "$101.51", q.Display().Total)
	assert.Equal(t, "$1.01", q.Display().Fee)
}

func TestCalculateFee_EdgeCases(t *testing.T) {
	schedule := entities.DefaultFeeSchedule()

	q := CalculateFee(decimal.NewFromInt(-20), entities.PaymentMethodPayPal, schedule)
	assert.True(t, q.Amount.IsZero())
	assert.True(t, q.Fee.IsZero())

	q = CalculateFee(decimal.NewFromInt(100), entities.PaymentMethod("wire"), schedule)
	assert.True(t, q.Rate.IsZero())
	assert.True(t, q.Fee.IsZero())
	assert.True(t, q.Total.Equal(decimal.NewFromInt(100)))

	q = CalculateFee(decimal.NewFromInt(100), entities.PaymentMethodPayPal, schedule)
	assert.Equal(t, "3.5", q.Fee.String())
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"1.005", "$1.01"},
		{"101.505", "$101.51"},
		{"101.504", "$101.50"},
		{"12", "$12.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUSD(decimal.RequireFromString(tt.in)), tt.in)
	}
}
