package fees

import (
	"context"
	"errors"
	"testing"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	schedule entities.FeeSchedule
	err      error
}

func (p *stubProvider) GetPaymentFees(context.Context) (entities.FeeSchedule, error) {
	return p.schedule, p.err
}

func TestService_DefaultsBeforeRefresh(t *testing.T) {
	svc := NewService(&stubProvider{}, nil, zap.NewNop())

	assert.Equal(t, "0.02", svc.Schedule()[entities.PaymentMethodBank].String())
	assert.Equal(t, SourceDefault, svc.Status().Source)
}

func TestService_RefreshMergesRemote(t *testing.T) {
	provider := &stubProvider{schedule: entities.FeeSchedule{
		entities.PaymentMethodPayPal:   decimal.RequireFromString("0.04"),
		entities.PaymentMethod("wire"): decimal.RequireFromString("0.5"),
		entities.PaymentMethodCrypto:   decimal.RequireFromString("-1"),
	}}
	svc := NewService(provider, nil, zap.NewNop())

	require.NoError(t, svc.Refresh(context.Background()))

	schedule := svc.Schedule()
	assert.Equal(t, "0.04", schedule[entities.PaymentMethodPayPal].String())
	assert.Equal(t, "0.02", schedule[entities.PaymentMethodBank].String())
	assert.Equal(t, "0.01", schedule[entities.PaymentMethodCrypto].String())
	_, ok := schedule[entities.PaymentMethod("wire")]
	assert.False(t, ok)
	assert.Equal(t, SourceRemote, svc.Status().Source)
}

func TestService_RefreshFailureKeepsLastGood(t *testing.T) {
	provider := &stubProvider{schedule: entities.FeeSchedule{
		entities.PaymentMethodBank: decimal.RequireFromString("0.03"),
	}}
	svc := NewService(provider, nil, zap.NewNop())
	require.NoError(t, svc.Refresh(context.Background()))

	provider.err = errors.New("timeout")
	assert.Error(t, svc.Refresh(context.Background()))
	assert.Equal(t, "0.03", svc.Schedule()[entities.PaymentMethodBank].String())
}

func TestService_ScheduleIsACopy(t *testing.T) {
	svc := NewService(&stubProvider{}, nil, zap.NewNop())
	s := svc.Schedule()
	s[entities.PaymentMethodBank] = decimal.NewFromInt(1)

	assert.Equal(t, "0.02", svc.Schedule()[entities.PaymentMethodBank].String())
}
