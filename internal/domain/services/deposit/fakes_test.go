package deposit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeClock fires timers synchronously from Advance
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

// Armed counts timers that have neither fired nor been stopped
func (c *fakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu sync.Mutex

	createReqs   []entities.DepositRequest
	createResult *entities.DepositResult
	createErr    error

	processCalls  int
	processResult *entities.PaymentResult
	processErr    error

	statusCalls int
	statuses    []entities.TransactionStatus
	statusErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		createResult:  &entities.DepositResult{TransactionID: "tx-1", Address: "addr-1"},
		processResult: &entities.PaymentResult{Success: true},
		statuses:      []entities.TransactionStatus{entities.TransactionStatusPending},
	}
}

func (g *fakeGateway) CreateDeposit(_ context.Context, req entities.DepositRequest) (*entities.DepositResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createReqs = append(g.createReqs, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createResult, nil
}

func (g *fakeGateway) ProcessPayment(_ context.Context, _ string) (*entities.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processCalls++
	if g.processErr != nil {
		return nil, g.processErr
	}
	return g.processResult, nil
}

// CheckTransactionStatus returns the queued statuses in order, repeating the last one
func (g *fakeGateway) CheckTransactionStatus(_ context.Context, _ string) (entities.TransactionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return "", g.statusErr
	}
	status := g.statuses[0]
	if len(g.statuses) > 1 {
		g.statuses = g.statuses[1:]
	}
	return status, nil
}

func (g *fakeGateway) calls() (create, process, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.createReqs), g.processCalls, g.statusCalls
}

type fakeNotifier struct {
	mu     sync.Mutex
	toasts []entities.Toast
	events []entities.Event
}

func (n *fakeNotifier) Toast(_ string, t entities.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, t)
}

func (n *fakeNotifier) Publish(_ string, e entities.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) lastToast() entities.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.toasts) == 0 {
		return entities.Toast{}
	}
	return n.toasts[len(n.toasts)-1]
}

func (n *fakeNotifier) toastCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.toasts)
}

type fakeClipboard struct {
	err    error
	copied []string
}

func (c *fakeClipboard) Copy(_, _, value string) error {
	if c.err != nil {
		return c.err
	}
	c.copied = append(c.copied, value)
	return nil
}

type fakeBalance struct {
	refreshed int
}

func (b *fakeBalance) RefreshBalance(_ context.Context, _ string) (*entities.Balance, error) {
	b.refreshed++
	return &entities.Balance{Amount: decimal.NewFromInt(150), Currency: "USD"}, nil
}

type fakeAudit struct {
	mu          sync.Mutex
	deposits    []string
	confirms    int
	transitions []string
}

func (a *fakeAudit) LogDeposit(_ context.Context, _, transactionID, _, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deposits = append(a.deposits, transactionID)
	return nil
}

func (a *fakeAudit) LogPaymentConfirmation(_ context.Context, _, _ string, _ bool, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.confirms++
	return nil
}

func (a *fakeAudit) LogStatusTransition(_ context.Context, _, _, _, from, to, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, from+"->"+to)
	return nil
}

type staticFees struct {
	schedule entities.FeeSchedule
}

func (f staticFees) Schedule() entities.FeeSchedule {
	return f.schedule
}

type harness struct {
	clock     *fakeClock
	gateway   *fakeGateway
	notifier  *fakeNotifier
	clipboard *fakeClipboard
	balance   *fakeBalance
	audit     *fakeAudit
	deferred  []func()
	manager   *Manager
}

// newHarness builds a manager whose create-deposit call runs inline unless deferDispatch is set
func newHarness(deferDispatch bool) *harness {
	h := &harness{
		clock:     &fakeClock{},
		gateway:   newFakeGateway(),
		notifier:  &fakeNotifier{},
		clipboard: &fakeClipboard{},
		balance:   &fakeBalance{},
		audit:     &fakeAudit{},
	}
	dispatch := func(f func()) { f() }
	if deferDispatch {
		dispatch = func(f func()) { h.deferred = append(h.deferred, f) }
	}
	h.manager = NewManager(Config{
		PollInterval: 10 * time.Second,
		Currency:     "USD",
		Presets: []decimal.Decimal{
			decimal.NewFromInt(10), decimal.NewFromInt(50), decimal.NewFromInt(100),
		},
	}, Dependencies{
		Gateway:   h.gateway,
		Fees:      staticFees{schedule: entities.DefaultFeeSchedule()},
		Notifier:  h.notifier,
		Clipboard: h.clipboard,
		Balance:   h.balance,
		Audit:     h.audit,
		Clock:     h.clock,
		Dispatch:  dispatch,
		Logger:    zap.NewNop(),
	})
	return h
}

func (h *harness) runDeferred() {
	pending := h.deferred
	h.deferred = nil
	for _, f := range pending {
		f()
	}
}

var errUpstream = errors.New("account API unavailable")
