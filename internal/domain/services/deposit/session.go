package deposit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/pkg/requestctx"
	"github.com/antidetect/dashboard_service/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount    = errors.New("choose or enter a valid amount")
	ErrDepositInFlight  = errors.New("a deposit is already being created")
	ErrDialogOpen       = errors.New("payment dialog is already open")
	ErrDialogClosed     = errors.New("payment dialog is not open")
	ErrNoTransaction    = errors.New("no transaction has been created yet")
	ErrTransactionFinal = errors.New("transaction already reached a final status")
	ErrCheckInFlight    = errors.New("a payment confirmation is already in progress")
	ErrUnknownPreset    = errors.New("amount is not one of the offered presets")
	ErrInvalidMethod    = errors.New("unsupported payment method")
	ErrUnknownField     = errors.New("unknown payment detail")
	ErrNothingToCopy    = errors.New("payment detail is not available yet")
)

// State is the deposit session lifecycle state
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateDialogOpen           State = "dialog_open"
	StatePolling              State = "polling"
)

const (
	triggerPoller = "poller"
	triggerUser   = "user"
)

// Gateway is the deposit, payment and status side of the account API
type Gateway interface {
	CreateDeposit(ctx context.Context, req entities.DepositRequest) (*entities.DepositResult, error)
	ProcessPayment(ctx context.Context, transactionID string) (*entities.PaymentResult, error)
	CheckTransactionStatus(ctx context.Context, transactionID string) (entities.TransactionStatus, error)
}

// FeeSource provides the current fee schedule
type FeeSource interface {
	Schedule() entities.FeeSchedule
}

// Notifier delivers toasts and realtime events to a user's browser
type Notifier interface {
	Toast(userID string, toast entities.Toast)
	Publish(userID string, event entities.Event)
}

// Clipboard places a payment detail on the user's clipboard
type Clipboard interface {
	Copy(userID, label, value string) error
}

// BalanceRefresher reloads the account balance after a completed deposit
type BalanceRefresher interface {
	RefreshBalance(ctx context.Context, userID string) (*entities.Balance, error)
}

// AuditRecorder writes deposit events to the audit trail
type AuditRecorder interface {
	LogDeposit(ctx context.Context, userID, transactionID, amount, method, status string) error
	LogPaymentConfirmation(ctx context.Context, userID, transactionID string, success bool, message string) error
	LogStatusTransition(ctx context.Context, userID, entityID, entityType, fromStatus, toStatus, triggeredBy string) error
}

// Config tunes deposit sessions
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Currency       string
	Presets        []decimal.Decimal
	Instructions   map[entities.PaymentMethod]string
}

// Dependencies are the collaborators shared by all sessions
type Dependencies struct {
	Gateway   Gateway
	Fees      FeeSource
	Notifier  Notifier
	Clipboard Clipboard
	Balance   BalanceRefresher
	Audit     AuditRecorder
	Clock     Clock
	// Dispatch runs the create-deposit call off the caller's goroutine
	Dispatch func(func())
	Logger   *zap.Logger
}

// Dialog is the payment dialog shown after confirmation
type Dialog struct {
	Visible       bool                       `json:"visible"`
	ShowQR        bool                       `json:"show_qr"`
	TransactionID string                     `json:"transaction_id,omitempty"`
	Status        entities.TransactionStatus `json:"status,omitempty"`
	PaymentMethod entities.PaymentMethod     `json:"payment_method,omitempty"`
	Quote         Quote                      `json:"quote"`
	Display       QuoteDisplay               `json:"display"`
	PaymentURL    string                     `json:"payment_url,omitempty"`
	Address       string                     `json:"address,omitempty"`
	Instructions  string                     `json:"instructions,omitempty"`
}

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	State           State                  `json:"state"`
	Selection       SelectionSnapshot      `json:"selection"`
	EffectiveAmount decimal.Decimal        `json:"effective_amount"`
	PaymentMethod   entities.PaymentMethod `json:"payment_method"`
	Quote           Quote                  `json:"quote"`
	Display         QuoteDisplay           `json:"display"`
	CreatingDeposit bool                   `json:"creating_deposit"`
	Dialog          Dialog                 `json:"dialog"`
}

// Session owns one user's deposit workflow. All state changes go through its mutex;
// network calls are made without holding it.
type Session struct {
	mu sync.Mutex

	userID      string
	accessToken string
	cfg         Config
	deps        Dependencies
	logger      *zap.Logger

	state      State
	selection  Selection
	method     entities.PaymentMethod
	dialog     Dialog
	generation uint64
	creating   bool
	checking   bool
	timer      Timer
}

// outbox collects notifications while the lock is held so they are sent after release
type outbox struct {
	toasts []entities.Toast
	events []entities.Event
}

func (o *outbox) toast(variant entities.ToastVariant, title, description string) {
	o.toasts = append(o.toasts, entities.Toast{Variant: variant, Title: title, Description: description})
}

func (o *outbox) event(eventType string, payload interface{}) {
	o.events = append(o.events, entities.Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
}

func newSession(userID, accessToken string, cfg Config, deps Dependencies) *Session {
	return &Session{
		userID:      userID,
		accessToken: accessToken,
		cfg:         cfg,
		deps:        deps,
		logger:      deps.Logger.With(zap.String("user_id", userID)),
		state:       StateIdle,
		method:      entities.PaymentMethodBank,
	}
}

func (s *Session) setAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" {
		s.accessToken = token
	}
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	effective := s.selection.Effective()
	quote := CalculateFee(effective, s.method, s.deps.Fees.Schedule())
	return Snapshot{
		State:           s.state,
		Selection:       s.selection.Snapshot(),
		EffectiveAmount: effective,
		PaymentMethod:   s.method,
		Quote:           quote,
		Display:         quote.Display(),
		CreatingDeposit: s.creating,
		Dialog:          s.dialog,
	}
}

// SelectPreset picks one of the configured preset amounts
func (s *Session) SelectPreset(amount decimal.Decimal) (Snapshot, error) {
	if !s.isPreset(amount) {
		return s.Snapshot(), ErrUnknownPreset
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.SelectPreset(amount)
	return s.snapshotLocked(), nil
}

func (s *Session) isPreset(amount decimal.Decimal) bool {
	for _, p := range s.cfg.Presets {
		if p.Equal(amount) {
			return true
		}
	}
	return false
}

// SetCustomAmount stores the text typed in the custom amount field
func (s *Session) SetCustomAmount(text string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.SetCustom(text)
	return s.snapshotLocked()
}

// SelectMethod changes the payment method used for the quote and the next deposit
func (s *Session) SelectMethod(method entities.PaymentMethod) (Snapshot, error) {
	if !method.IsValid() {
		return s.Snapshot(), ErrInvalidMethod
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.method = method
	return s.snapshotLocked(), nil
}

// Confirm validates the amount, opens the payment dialog and starts creating the deposit.
// The dialog opens before the deposit service answers; its result fills in the transaction.
func (s *Session) Confirm() (Snapshot, error) {
	var out outbox

	s.mu.Lock()
	if s.creating {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrDepositInFlight
	}
	// An open dialog without a transaction means creation failed; confirming again retries it
	if s.dialog.Visible && s.dialog.TransactionID != "" {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrDialogOpen
	}

	amount := s.selection.Effective()
	if !amount.IsPositive() {
		out.toast(entities.ToastVariantDestructive, "Invalid amount", ErrInvalidAmount.Error())
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.flush(out)
		metrics.DepositConfirmationsTotal.WithLabelValues(string(snap.PaymentMethod), "invalid_amount").Inc()
		return snap, ErrInvalidAmount
	}

	s.state = StateAwaitingConfirmation
	quote := CalculateFee(amount, s.method, s.deps.Fees.Schedule())
	s.generation++
	gen := s.generation
	s.dialog = Dialog{
		Visible:       true,
		ShowQR:        true,
		PaymentMethod: s.method,
		Quote:         quote,
		Display:       quote.Display(),
		Instructions:  s.cfg.Instructions[s.method],
	}
	s.state = StateDialogOpen
	s.creating = true

	req := entities.DepositRequest{
		Amount:        amount,
		PaymentMethod: s.method,
		Currency:      s.cfg.Currency,
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("Deposit confirmed",
		zap.String("amount", amount.String()),
		zap.String("method", string(req.PaymentMethod)),
	)
	s.deps.Dispatch(func() { s.createDeposit(gen, req) })
	return snap, nil
}

func (s *Session) createDeposit(gen uint64, req entities.DepositRequest) {
	ctx, cancel := s.backgroundContext()
	defer cancel()

	result, err := s.deps.Gateway.CreateDeposit(ctx, req)

	var out outbox
	s.mu.Lock()
	s.creating = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("Failed to create deposit", zap.Error(err))
		metrics.DepositConfirmationsTotal.WithLabelValues(string(req.PaymentMethod), "error").Inc()
		out.toast(entities.ToastVariantDestructive, "Deposit failed", err.Error())
		s.flush(out)
		return
	}
	if gen != s.generation || !s.dialog.Visible {
		s.mu.Unlock()
		s.logger.Info("Ignoring deposit created after dialog was closed",
			zap.String("transaction_id", result.TransactionID))
		return
	}

	s.dialog.TransactionID = result.TransactionID
	s.dialog.PaymentURL = result.PaymentURL
	s.dialog.Address = result.Address
	s.dialog.Status = entities.TransactionStatusPending
	s.scheduleLocked(gen)
	out.event(entities.EventTypeDepositCreated, s.dialog)
	s.mu.Unlock()

	metrics.DepositConfirmationsTotal.WithLabelValues(string(req.PaymentMethod), "created").Inc()
	s.flush(out)
	s.audit(func(ctx context.Context) error {
		return s.deps.Audit.LogDeposit(ctx, s.userID, result.TransactionID,
			req.Amount.String(), string(req.PaymentMethod), string(entities.TransactionStatusPending))
	})
}

// MarkPaid handles "I have paid": it notifies the payment service and checks the status once
func (s *Session) MarkPaid(ctx context.Context) (Snapshot, error) {
	var out outbox

	s.mu.Lock()
	switch {
	case !s.dialog.Visible:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrDialogClosed
	case s.dialog.TransactionID == "":
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrNoTransaction
	case s.dialog.Status.IsTerminal():
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrTransactionFinal
	case s.checking:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrCheckInFlight
	}
	s.state = StatePolling
	s.checking = true
	gen := s.generation
	txID := s.dialog.TransactionID
	s.mu.Unlock()

	result, err := s.deps.Gateway.ProcessPayment(ctx, txID)
	if err != nil {
		s.logger.Warn("Payment confirmation failed", zap.String("transaction_id", txID), zap.Error(err))
		out.toast(entities.ToastVariantDestructive, "Payment confirmation failed", err.Error())
		s.flush(out)
		return s.finishCheck(gen), nil
	}
	if !result.Success {
		out.toast(entities.ToastVariantDefault, "Payment not confirmed yet", result.Message)
	}
	s.audit(func(ctx context.Context) error {
		return s.deps.Audit.LogPaymentConfirmation(ctx, s.userID, txID, result.Success, result.Message)
	})

	status, err := s.deps.Gateway.CheckTransactionStatus(ctx, txID)
	if err != nil {
		s.logger.Warn("Manual status check failed", zap.String("transaction_id", txID), zap.Error(err))
		metrics.DepositStatusChecksTotal.WithLabelValues(triggerUser, "error").Inc()
		out.toast(entities.ToastVariantDestructive, "Could not check payment status", err.Error())
		s.flush(out)
		return s.finishCheck(gen), nil
	}
	s.flush(out)
	s.applyStatus(gen, txID, status, triggerUser)
	return s.finishCheck(gen), nil
}

// finishCheck leaves the polling state once a manual check is over
func (s *Session) finishCheck(gen uint64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checking = false
	if gen == s.generation && s.state == StatePolling {
		s.state = StateDialogOpen
	}
	return s.snapshotLocked()
}

// scheduleLocked arms the next automatic status check. Caller holds s.mu.
func (s *Session) scheduleLocked(gen uint64) {
	s.stopTimerLocked()
	s.timer = s.deps.Clock.AfterFunc(s.cfg.PollInterval, func() { s.poll(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) poll(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || !s.dialog.Visible || s.dialog.TransactionID == "" || s.dialog.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	txID := s.dialog.TransactionID
	s.mu.Unlock()

	ctx, cancel := s.backgroundContext()
	defer cancel()

	status, err := s.deps.Gateway.CheckTransactionStatus(ctx, txID)
	if err != nil {
		s.logger.Warn("Automatic status check failed",
			zap.String("transaction_id", txID), zap.Error(err))
		metrics.DepositStatusChecksTotal.WithLabelValues(triggerPoller, "error").Inc()
		s.mu.Lock()
		if gen == s.generation && s.dialog.Visible && !s.dialog.Status.IsTerminal() {
			s.scheduleLocked(gen)
		}
		s.mu.Unlock()
		return
	}
	s.applyStatus(gen, txID, status, triggerPoller)
}

// applyStatus records a status response. The latest response wins unless the
// transaction is already terminal.
func (s *Session) applyStatus(gen uint64, txID string, status entities.TransactionStatus, trigger string) {
	var out outbox

	s.mu.Lock()
	if gen != s.generation || s.dialog.TransactionID != txID || s.dialog.Status.IsTerminal() {
		s.mu.Unlock()
		metrics.DepositStatusChecksTotal.WithLabelValues(trigger, "stale").Inc()
		return
	}
	if err := s.dialog.Status.ValidateTransition(status); status != s.dialog.Status && err != nil {
		s.logger.Warn("Ignoring transaction status",
			zap.String("transaction_id", txID), zap.Error(err))
		if trigger == triggerPoller {
			s.scheduleLocked(gen)
		}
		s.mu.Unlock()
		metrics.DepositStatusChecksTotal.WithLabelValues(trigger, "invalid").Inc()
		return
	}

	previous := s.dialog.Status
	s.dialog.Status = status
	out.event(entities.EventTypeDepositStatus, map[string]interface{}{
		"transaction_id": txID,
		"status":         status,
	})

	terminal := status.IsTerminal()
	if terminal {
		s.stopTimerLocked()
		s.dialog.ShowQR = false
		if status == entities.TransactionStatusCompleted {
			out.toast(entities.ToastVariantSuccess, "Deposit completed",
				fmt.Sprintf("%s has been added to your balance", s.dialog.Display.Amount))
		} else {
			out.toast(entities.ToastVariantDestructive, "Deposit failed",
				"The payment could not be completed. No funds were added.")
		}
	} else if trigger == triggerPoller {
		s.scheduleLocked(gen)
	}
	s.mu.Unlock()

	metrics.DepositStatusChecksTotal.WithLabelValues(trigger, string(status)).Inc()
	s.flush(out)

	if !terminal {
		return
	}
	s.logger.Info("Deposit reached final status",
		zap.String("transaction_id", txID),
		zap.String("status", string(status)),
		zap.String("triggered_by", trigger),
	)
	s.audit(func(ctx context.Context) error {
		return s.deps.Audit.LogStatusTransition(ctx, s.userID, txID, "deposit", string(previous), string(status), trigger)
	})
	if status == entities.TransactionStatusCompleted && s.deps.Balance != nil {
		ctx, cancel := s.backgroundContext()
		defer cancel()
		if balance, err := s.deps.Balance.RefreshBalance(ctx, s.userID); err != nil {
			s.logger.Warn("Failed to refresh balance after deposit", zap.Error(err))
		} else {
			s.deps.Notifier.Publish(s.userID, entities.Event{
				Type:      entities.EventTypeBalance,
				Payload:   balance,
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

// Copy puts a payment detail from the dialog on the user's clipboard.
// A clipboard failure is reported as a toast only.
func (s *Session) Copy(field string) error {
	s.mu.Lock()
	if !s.dialog.Visible {
		s.mu.Unlock()
		return ErrDialogClosed
	}
	var label, value string
	switch field {
	case "transaction_id":
		label, value = "Transaction ID", s.dialog.TransactionID
	case "address":
		label, value = "Payment address", s.dialog.Address
	case "payment_url":
		label, value = "Payment link", s.dialog.PaymentURL
	case "amount":
		label, value = "Amount", s.dialog.Quote.Total.StringFixed(2)
	default:
		s.mu.Unlock()
		return ErrUnknownField
	}
	s.mu.Unlock()

	if value == "" {
		return ErrNothingToCopy
	}

	var out outbox
	if err := s.deps.Clipboard.Copy(s.userID, label, value); err != nil {
		s.logger.Warn("Clipboard copy failed", zap.String("field", field), zap.Error(err))
		out.toast(entities.ToastVariantDestructive, "Copy failed", "Copy the value manually.")
	} else {
		out.toast(entities.ToastVariantDefault, "Copied", label+" copied to clipboard")
	}
	s.flush(out)
	return nil
}

// QRPayload returns the content encoded in the payment QR code
func (s *Session) QRPayload() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dialog.Visible || !s.dialog.ShowQR {
		return "", ErrDialogClosed
	}
	if s.dialog.TransactionID == "" {
		return "", ErrNoTransaction
	}
	return PaymentPayload(s.dialog), nil
}

// Close hides the dialog, cancels the scheduled re-check and returns to idle.
// Responses to requests issued before Close no longer change the state.
func (s *Session) Close() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.generation++
	s.dialog = Dialog{}
	s.state = StateIdle
	return s.snapshotLocked()
}

func (s *Session) backgroundContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	ctx := requestctx.WithUserID(context.Background(), s.userID)
	ctx = requestctx.WithAccessToken(ctx, token)
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func (s *Session) audit(fn func(ctx context.Context) error) {
	if s.deps.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn("Failed to write deposit audit record", zap.Error(err))
	}
}

func (s *Session) flush(out outbox) {
	for _, t := range out.toasts {
		s.deps.Notifier.Toast(s.userID, t)
	}
	for _, e := range out.events {
		s.deps.Notifier.Publish(s.userID, e)
	}
}
