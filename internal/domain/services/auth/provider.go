// Package auth owns signed-in state: browser sessions backed by upstream tokens,
// the cached account balance, and teardown on logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	"github.com/antidetect/dashboard_service/internal/pkg/requestctx"
	"github.com/antidetect/dashboard_service/internal/pkg/util"
	tokens "github.com/antidetect/dashboard_service/pkg/auth"
	"github.com/antidetect/dashboard_service/pkg/validation"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionMismatch    = errors.New("session does not belong to this client")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const DefaultSessionTTL = 24 * time.Hour

// Upstream is the part of the account API the provider needs
type Upstream interface {
	Login(ctx context.Context, email, password string) (*entities.LoginResult, error)
	Logout(ctx context.Context) error
	GetBalance(ctx context.Context) (*entities.Balance, error)
}

// AuditLogger records authentication events
type AuditLogger interface {
	LogLogin(ctx context.Context, userID string, success bool) error
	LogLogout(ctx context.Context, userID string) error
}

// LogoutHook runs after a user's session is torn down
type LogoutHook func(userID string)

// LoginForm is the sign-in form
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ClientInfo identifies the browser making a request
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type Config struct {
	SessionTTL time.Duration
}

// Provider replaces ambient auth and balance globals with explicit state
type Provider struct {
	upstream  Upstream
	store     repositories.SessionStore
	audit     AuditLogger
	validator *validation.Validator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*repositories.StoredSession
	balances map[string]*entities.Balance
	hooks    []LogoutHook
}

// NewProvider creates an auth provider. audit may be nil.
func NewProvider(upstream Upstream, store repositories.SessionStore, audit AuditLogger, cfg Config, logger *zap.Logger) *Provider {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Provider{
		upstream:  upstream,
		store:     store,
		audit:     audit,
		validator: validation.NewValidator(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*repositories.StoredSession),
		balances:  make(map[string]*entities.Balance),
	}
}

// OnLogout registers a teardown hook
func (p *Provider) OnLogout(hook LogoutHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Login validates the form, signs in upstream and opens a browser session.
// Validation problems are returned as validation.FieldErrors.
func (p *Provider) Login(ctx context.Context, form LoginForm, client ClientInfo) (*repositories.StoredSession, error) {
	form.Email = strings.TrimSpace(form.Email)
	if result := validation.Check(p.validator, form); !result.Valid() {
		return nil, result.Errors()
	}

	res, err := p.upstream.Login(ctx, form.Email, form.Password)
	if err != nil {
		var unauthorized interface{ IsUnauthorized() bool }
		if errors.As(err, &unauthorized) && unauthorized.IsUnauthorized() {
			p.logger.Info("Login rejected", zap.String("email", util.RedactEmail(form.Email)))
			p.recordLogin(ctx, "", false)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	now := p.now().UTC()
	ttl := tokens.SessionTTL(res.Tokens.AccessToken, now, p.cfg.SessionTTL)
	if !res.Tokens.ExpiresAt.IsZero() {
		if d := res.Tokens.ExpiresAt.Sub(now); d < ttl {
			ttl = d
		}
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("login: upstream issued an expired token")
	}

	id := uuid.NewString()
	session := &repositories.StoredSession{
		ID:        id,
		User:      res.User,
		Tokens:    res.Tokens,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Binding:   tokens.BindingHash(id, client.UserAgent),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := p.store.Save(ctx, session, ttl); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	p.mu.Lock()
	p.sessions[id] = session
	p.mu.Unlock()

	p.recordLogin(ctx, res.User.ID, true)
	p.logger.Info("User signed in",
		zap.String("user_id", res.User.ID),
		zap.String("email", util.RedactEmail(res.User.Email)),
		zap.Duration("ttl", ttl),
	)

	if _, err := p.RefreshBalance(requestctx.WithAccessToken(ctx, res.Tokens.AccessToken), res.User.ID); err != nil {
		p.logger.Warn("Failed to load balance after login", zap.String("user_id", res.User.ID), zap.Error(err))
	}
	return session, nil
}

// Restore returns the live session for sessionID, loading it from storage
// when it is not cached. Expired sessions are deleted.
func (p *Provider) Restore(ctx context.Context, sessionID, userAgent string) (*repositories.StoredSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	p.mu.RLock()
	session, ok := p.sessions[sessionID]
	p.mu.RUnlock()

	if !ok {
		stored, err := p.store.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repositories.ErrSessionNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("restore session: %w", err)
		}
		session = stored
	}

	if !session.ExpiresAt.IsZero() && !p.now().Before(session.ExpiresAt) {
		p.forget(sessionID)
		if err := p.store.Delete(ctx, sessionID); err != nil {
			p.logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, ErrSessionExpired
	}
	if session.Binding != "" && session.Binding != tokens.BindingHash(sessionID, userAgent) {
		return nil, ErrSessionMismatch
	}

	if !ok {
		p.mu.Lock()
		p.sessions[sessionID] = session
		p.mu.Unlock()
	}
	return session, nil
}

// Logout ends the session. Upstream logout is best effort; local state is always cleared.
func (p *Provider) Logout(ctx context.Context, sessionID string) error {
	p.mu.RLock()
	session, ok := p.sessions[sessionID]
	p.mu.RUnlock()
	if !ok {
		stored, err := p.store.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repositories.ErrSessionNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("logout: %w", err)
		}
		session = stored
	}

	if err := p.upstream.Logout(requestctx.WithAccessToken(ctx, session.Tokens.AccessToken)); err != nil {
		p.logger.Warn("Upstream logout failed", zap.String("user_id", session.User.ID), zap.Error(err))
	}

	p.forget(sessionID)
	if err := p.store.Delete(ctx, sessionID); err != nil {
		p.logger.Warn("Failed to delete stored session", zap.Error(err))
	}

	p.mu.Lock()
	delete(p.balances, session.User.ID)
	hooks := append([]LogoutHook(nil), p.hooks...)
	p.mu.Unlock()

	for _, hook := range hooks {
		hook(session.User.ID)
	}

	if p.audit != nil {
		if err := p.audit.LogLogout(ctx, session.User.ID); err != nil {
			p.logger.Warn("Failed to audit logout", zap.Error(err))
		}
	}
	p.logger.Info("User signed out", zap.String("user_id", session.User.ID))
	return nil
}

// UpdateUser replaces the cached user on a session after a profile change
func (p *Provider) UpdateUser(ctx context.Context, sessionID string, user entities.User) error {
	p.mu.Lock()
	session, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return ErrSessionNotFound
	}
	updated := *session
	updated.User = user
	p.sessions[sessionID] = &updated
	p.mu.Unlock()

	ttl := updated.ExpiresAt.Sub(p.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}
	if err := p.store.Save(ctx, &updated, ttl); err != nil {
		return fmt.Errorf("update session user: %w", err)
	}
	return nil
}

// Balance returns the cached balance for a user
func (p *Provider) Balance(userID string) (*entities.Balance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.balances[userID]
	if !ok {
		return nil, false
	}
	copied := *b
	return &copied, true
}

// RefreshBalance reloads the balance with the access token carried by ctx
func (p *Provider) RefreshBalance(ctx context.Context, userID string) (*entities.Balance, error) {
	balance, err := p.upstream.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh balance: %w", err)
	}

	p.mu.Lock()
	p.balances[userID] = balance
	p.mu.Unlock()

	copied := *balance
	return &copied, nil
}

// ActiveSessions is the number of cached sessions
func (p *Provider) ActiveSessions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

func (p *Provider) forget(sessionID string) {
	p.mu.Lock()
	delete(p.sessions, sessionID)
	p.mu.Unlock()
}

func (p *Provider) recordLogin(ctx context.Context, userID string, success bool) {
	if p.audit == nil {
		return
	}
	if err := p.audit.LogLogin(ctx, userID, success); err != nil {
		p.logger.Warn("Failed to audit login", zap.Error(err))
	}
}
