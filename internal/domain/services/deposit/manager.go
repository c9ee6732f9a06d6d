package deposit

import (
	"sync"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval   = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Options is what the deposit page offers before anything is selected
type Options struct {
	Presets      []decimal.Decimal                 `json:"presets"`
	Methods      []entities.PaymentMethod          `json:"methods"`
	FeeSchedule  entities.FeeSchedule              `json:"fee_schedule"`
	Instructions map[entities.PaymentMethod]string `json:"instructions"`
	Currency     string                            `json:"currency"`
}

// Manager keeps one deposit session per signed-in user
type Manager struct {
	cfg  Config
	deps Dependencies

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. Missing clock, dispatcher and logger get defaults.
func NewManager(cfg Config, deps Dependencies) *Manager {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(f func()) { go f() }
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = entities.DefaultCurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// For returns the user's session, creating it on first use.
// The access token is refreshed on every call so background checks use the latest one.
func (m *Manager) For(userID, accessToken string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		s.setAccessToken(accessToken)
		return s
	}
	s := newSession(userID, accessToken, m.cfg, m.deps)
	m.sessions[userID] = s
	metrics.ActiveDepositSessions.Set(float64(len(m.sessions)))
	return s
}

// Release closes and forgets the user's session. Called on logout.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	metrics.ActiveDepositSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll stops every session's scheduled checks
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	metrics.ActiveDepositSessions.Set(0)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Options returns presets, methods and the current fee schedule
func (m *Manager) Options() Options {
	return Options{
		Presets:      m.cfg.Presets,
		Methods:      entities.PaymentMethods,
		FeeSchedule:  m.deps.Fees.Schedule(),
		Instructions: m.cfg.Instructions,
		Currency:     m.cfg.Currency,
	}
}
