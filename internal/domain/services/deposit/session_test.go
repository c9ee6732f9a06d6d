package deposit

import (
	"context"
	"testing"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm_PresetBank(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")

	_, err := s.SelectPreset(decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = s.SelectMethod(entities.PaymentMethodBank)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, "$1.00", snap.Display.Fee)
	assert.Equal(t, "$51.00", snap.Display.Total)

	_, err = s.Confirm()
	require.NoError(t, err)

	require.Len(t, h.gateway.createReqs, 1)
	req := h.gateway.createReqs[0]
	assert.True(t, req.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, entities.PaymentMethodBank, req.PaymentMethod)
	assert.Equal(t, "USD", req.Currency)

	snap = s.Snapshot()
	assert.True(t, snap.Dialog.Visible)
	assert.True(t, snap.Dialog.ShowQR)
	assert.Equal(t, "tx-1", snap.Dialog.TransactionID)
	assert.Equal(t, entities.TransactionStatusPending, snap.Dialog.Status)
	assert.Equal(t, StateDialogOpen, snap.State)
	assert.Equal(t, []string{"tx-1"}, h.audit.deposits)
}

func TestConfirm_CustomCrypto(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")

	s.SetCustomAmount("100.5")
	_, err := s.SelectMethod(entities.PaymentMethodCrypto)
	require.NoError(t, err)

	snap, err := s.Confirm()
	require.NoError(t, err)

	assert.Equal(t, "1.005", snap.Dialog.Quote.Fee.String())
	assert.Equal(t, "101.505", snap.Dialog.Quote.Total.String())
	assert.Equal(t, "$101.51", snap.Dialog.Display.Total)
	require.Len(t, h.gateway.createReqs, 1)
	assert.Equal(t, "100.5", h.gateway.createReqs[0].Amount.String())
}

func TestConfirm_RejectsZeroAmount(t *testing.T) {
	for _, custom := range []string{"", "0", "abc", "-10"} {
		h := newHarness(false)
		s := h.manager.For("user-1", "token")
		s.SetCustomAmount(custom)

		snap, err := s.Confirm()

		assert.ErrorIs(t, err, ErrInvalidAmount, custom)
		assert.False(t, snap.Dialog.Visible)
		assert.Equal(t, StateIdle, snap.State)
		create, _, _ := h.gateway.calls()
		assert.Zero(t, create)

		toast := h.notifier.lastToast()
		assert.Equal(t, entities.ToastVariantDestructive, toast.Variant)
		assert.Equal(t, "choose or enter a valid amount", toast.Description)
	}
}

func TestConfirm_DialogOpensBeforeDepositIsCreated(t *testing.T) {
	h := newHarness(true)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	snap, err := s.Confirm()
	require.NoError(t, err)
	assert.True(t, snap.Dialog.Visible)
	assert.True(t, snap.Dialog.ShowQR)
	assert.Empty(t, snap.Dialog.TransactionID)
	assert.True(t, snap.CreatingDeposit)

	_, err = s.Confirm()
	assert.ErrorIs(t, err, ErrDepositInFlight)

	h.runDeferred()

	snap = s.Snapshot()
	assert.False(t, snap.CreatingDeposit)
	assert.Equal(t, "tx-1", snap.Dialog.TransactionID)
	assert.Equal(t, 1, h.clock.Armed())
}

func TestConfirm_RejectsWhileDialogOpen(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)
	_, err = s.Confirm()
	assert.ErrorIs(t, err, ErrDialogOpen)
	create, _, _ := h.gateway.calls()
	assert.Equal(t, 1, create)
}

func TestConfirm_CreateFailureKeepsDialogOpen(t *testing.T) {
	h := newHarness(false)
	h.gateway.createErr = errUpstream
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.True(t, snap.Dialog.Visible)
	assert.Empty(t, snap.Dialog.TransactionID)
	assert.False(t, snap.CreatingDeposit)
	assert.Zero(t, h.clock.Armed())

	toast := h.notifier.lastToast()
	assert.Equal(t, entities.ToastVariantDestructive, toast.Variant)
	assert.Contains(t, toast.Description, "account API unavailable")
}

func TestConfirm_RetryAfterCreateFailure(t *testing.T) {
	h := newHarness(false)
	h.gateway.createErr = errUpstream
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)
	_, err = s.MarkPaid(context.Background())
	assert.ErrorIs(t, err, ErrNoTransaction)

	h.gateway.mu.Lock()
	h.gateway.createErr = nil
	h.gateway.mu.Unlock()

	snap, err := s.Confirm()
	require.NoError(t, err)
	assert.True(t, snap.Dialog.Visible)

	snap = s.Snapshot()
	assert.Equal(t, "tx-1", snap.Dialog.TransactionID)
	assert.Equal(t, entities.TransactionStatusPending, snap.Dialog.Status)
	assert.Equal(t, 1, h.clock.Armed())
	create, _, _ := h.gateway.calls()
	assert.Equal(t, 2, create)

	_, err = s.Confirm()
	assert.ErrorIs(t, err, ErrDialogOpen)

	_, err = s.MarkPaid(context.Background())
	require.NoError(t, err)
	_, process, status := h.gateway.calls()
	assert.Equal(t, 1, process)
	assert.Equal(t, 1, status)
}

func TestCreateAfterClose_IsIgnored(t *testing.T) {
	h := newHarness(true)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)
	s.Close()

	h.runDeferred()

	snap := s.Snapshot()
	assert.False(t, snap.Dialog.Visible)
	assert.Empty(t, snap.Dialog.TransactionID)
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, h.clock.Armed())
}

func TestCreateFailureAfterClose_StillToasts(t *testing.T) {
	h := newHarness(true)
	h.gateway.createErr = errUpstream
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)
	s.Close()
	h.runDeferred()

	assert.Equal(t, entities.ToastVariantDestructive, h.notifier.lastToast().Variant)
	assert.False(t, s.Snapshot().Dialog.Visible)
}

func TestPolling_NoCheckAfterClose(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)
	require.Equal(t, 1, h.clock.Armed())

	s.Close()
	h.clock.Advance(30 * time.Second)

	_, _, status := h.gateway.calls()
	assert.Zero(t, status)
	assert.Zero(t, h.clock.Armed())
}

func TestPolling_UntilTerminal(t *testing.T) {
	h := newHarness(false)
	h.gateway.statuses = []entities.TransactionStatus{
		entities.TransactionStatusPending,
		entities.TransactionStatusPending,
		entities.TransactionStatusPending,
		entities.TransactionStatusCompleted,
	}
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("100")

	_, err := s.Confirm()
	require.NoError(t, err)

	var seen []entities.TransactionStatus
	for i := 0; i < 4; i++ {
		h.clock.Advance(10 * time.Second)
		seen = append(seen, s.Snapshot().Dialog.Status)
	}
	assert.Equal(t, []entities.TransactionStatus{
		entities.TransactionStatusPending,
		entities.TransactionStatusPending,
		entities.TransactionStatusPending,
		entities.TransactionStatusCompleted,
	}, seen)

	h.clock.Advance(time.Minute)
	_, _, status := h.gateway.calls()
	assert.Equal(t, 4, status)
	assert.Zero(t, h.clock.Armed())

	snap := s.Snapshot()
	assert.True(t, snap.Dialog.Visible)
	assert.False(t, snap.Dialog.ShowQR)
	assert.Equal(t, entities.ToastVariantSuccess, h.notifier.lastToast().Variant)
	assert.Equal(t, 1, h.balance.refreshed)
	assert.Equal(t, []string{"pending->completed"}, h.audit.transitions)
}

func TestPolling_ErrorsRetryWithoutToast(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")

	_, err := s.Confirm()
	require.NoError(t, err)
	toasts := h.notifier.toastCount()

	h.gateway.mu.Lock()
	h.gateway.statusErr = errUpstream
	h.gateway.mu.Unlock()
	h.clock.Advance(10 * time.Second)

	assert.Equal(t, toasts, h.notifier.toastCount())
	assert.Equal(t, 1, h.clock.Armed())

	h.gateway.mu.Lock()
	h.gateway.statusErr = nil
	h.gateway.statuses = []entities.TransactionStatus{entities.TransactionStatusFailed}
	h.gateway.mu.Unlock()
	h.clock.Advance(10 * time.Second)

	_, _, status := h.gateway.calls()
	assert.Equal(t, 2, status)
	assert.Equal(t, entities.TransactionStatusFailed, s.Snapshot().Dialog.Status)
	assert.Equal(t, entities.ToastVariantDestructive, h.notifier.lastToast().Variant)
	assert.Zero(t, h.balance.refreshed)
}

func TestMarkPaid_NotYetConfirmed(t *testing.T) {
	h := newHarness(false)
	h.gateway.processResult = &entities.PaymentResult{Success: false, Message: "Payment not received yet"}
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	snap, err := s.MarkPaid(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDialogOpen, snap.State)
	assert.Equal(t, entities.TransactionStatusPending, snap.Dialog.Status)
	_, process, status := h.gateway.calls()
	assert.Equal(t, 1, process)
	assert.Equal(t, 1, status)

	found := false
	for _, toast := range h.notifier.toasts {
		if toast.Variant == entities.ToastVariantDefault && toast.Description == "Payment not received yet" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, 1, h.audit.confirms)
}

func TestMarkPaid_CompletesAndStopsPolling(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	h.gateway.statuses = []entities.TransactionStatus{entities.TransactionStatusCompleted}
	snap, err := s.MarkPaid(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entities.TransactionStatusCompleted, snap.Dialog.Status)
	assert.False(t, snap.Dialog.ShowQR)
	assert.Zero(t, h.clock.Armed())
	assert.Equal(t, 1, h.balance.refreshed)

	_, err = s.MarkPaid(context.Background())
	assert.ErrorIs(t, err, ErrTransactionFinal)
}

func TestMarkPaid_ProcessErrorToastsAndSkipsCheck(t *testing.T) {
	h := newHarness(false)
	h.gateway.processErr = errUpstream
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	snap, err := s.MarkPaid(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Dialog.Visible)
	assert.Equal(t, StateDialogOpen, snap.State)
	_, _, status := h.gateway.calls()
	assert.Zero(t, status)
	assert.Equal(t, entities.ToastVariantDestructive, h.notifier.lastToast().Variant)
}

func TestMarkPaid_RequiresOpenDialogAndTransaction(t *testing.T) {
	h := newHarness(true)
	s := h.manager.For("user-1", "token")

	_, err := s.MarkPaid(context.Background())
	assert.ErrorIs(t, err, ErrDialogClosed)

	s.SetCustomAmount("20")
	_, err = s.Confirm()
	require.NoError(t, err)
	_, err = s.MarkPaid(context.Background())
	assert.ErrorIs(t, err, ErrNoTransaction)
}

func TestApplyStatus_TerminalIsImmutable(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	gen := s.generation
	s.applyStatus(gen, "tx-1", entities.TransactionStatusCompleted, triggerUser)
	s.applyStatus(gen, "tx-1", entities.TransactionStatusFailed, triggerPoller)
	s.applyStatus(gen, "tx-1", entities.TransactionStatusPending, triggerPoller)

	assert.Equal(t, entities.TransactionStatusCompleted, s.Snapshot().Dialog.Status)
}

func TestApplyStatus_UnknownStatusIgnored(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	s.applyStatus(s.generation, "tx-1", entities.TransactionStatus("refunded"), triggerUser)

	snap := s.Snapshot()
	assert.Equal(t, entities.TransactionStatusPending, snap.Dialog.Status)
	assert.True(t, snap.Dialog.ShowQR)
}

func TestApplyStatus_StaleGenerationIgnored(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")
	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	gen := s.generation
	s.Close()
	s.applyStatus(gen, "tx-1", entities.TransactionStatusCompleted, triggerUser)

	snap := s.Snapshot()
	assert.Empty(t, snap.Dialog.Status)
	assert.Zero(t, h.balance.refreshed)
}

func TestCopy(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")

	assert.ErrorIs(t, s.Copy("address"), ErrDialogClosed)

	s.SetCustomAmount("20")
	_, err := s.Confirm()
	require.NoError(t, err)

	require.NoError(t, s.Copy("address"))
	assert.Equal(t, []string{"addr-1"}, h.clipboard.copied)
	assert.ErrorIs(t, s.Copy("password"), ErrUnknownField)
	assert.ErrorIs(t, s.Copy("payment_url"), ErrNothingToCopy)

	h.clipboard.err = errUpstream
	require.NoError(t, s.Copy("transaction_id"))
	assert.Equal(t, entities.ToastVariantDestructive, h.notifier.lastToast().Variant)
}

func TestSelectPreset_RejectsUnknownAmount(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")

	_, err := s.SelectPreset(decimal.NewFromInt(37))
	assert.ErrorIs(t, err, ErrUnknownPreset)

	_, err = s.SelectMethod(entities.PaymentMethod("wire"))
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestQRPayload(t *testing.T) {
	h := newHarness(false)
	s := h.manager.For("user-1", "token")

	_, err := s.QRPayload()
	assert.ErrorIs(t, err, ErrDialogClosed)

	s.SetCustomAmount("20")
	_, err = s.SelectMethod(entities.PaymentMethodCrypto)
	require.NoError(t, err)
	_, err = s.Confirm()
	require.NoError(t, err)

	payload, err := s.QRPayload()
	require.NoError(t, err)
	assert.Contains(t, payload, "crypto:addr-1")
	assert.Contains(t, payload, "amount=20.20")
}
