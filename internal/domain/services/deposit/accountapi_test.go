package deposit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/infrastructure/adapters/accountapi"
	"github.com/antidetect/dashboard_service/internal/pkg/requestctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MarkPaid against the real client: a pending payment reply still leads to a status check
func TestMarkPaid_PendingReplyFromAccountAPI(t *testing.T) {
	var statusCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/deposits":
			_, _ = w.Write([]byte(`{"success":true,"data":{"transaction_id":"tx-7","address":"addr-7"}}`))
		case "/payments/process":
			_, _ = w.Write([]byte(`{"success":false,"message":"Payment is still pending"}`))
		case "/transactions/tx-7/status":
			atomic.AddInt32(&statusCalls, 1)
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client := accountapi.NewClient(accountapi.Config{
		BaseURL:    server.URL,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())

	h := newHarness(false)
	manager := NewManager(Config{
		PollInterval: 10 * time.Second,
		Currency:     "USD",
		Presets:      []decimal.Decimal{decimal.NewFromInt(10)},
	}, Dependencies{
		Gateway:   client,
		Fees:      staticFees{schedule: entities.DefaultFeeSchedule()},
		Notifier:  h.notifier,
		Clipboard: h.clipboard,
		Balance:   h.balance,
		Audit:     h.audit,
		Clock:     h.clock,
		Dispatch:  func(f func()) { f() },
		Logger:    zap.NewNop(),
	})

	s := manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)
	require.Equal(t, "tx-7", s.Snapshot().Dialog.TransactionID)

	ctx := requestctx.WithAccessToken(context.Background(), "token")
	snap, err := s.MarkPaid(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&statusCalls))
	assert.Equal(t, StateDialogOpen, snap.State)
	assert.Equal(t, entities.TransactionStatusPending, snap.Dialog.Status)

	toast := h.notifier.lastToast()
	assert.Equal(t, entities.ToastVariantDefault, toast.Variant)
	assert.Equal(t, "Payment is still pending", toast.Description)
	assert.Equal(t, 1, h.audit.confirms)
}
