// Package settings handles the profile, password and two-factor forms
package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/pkg/validation"
)

var (
	ErrNoPendingTwoFactor = errors.New("two-factor setup has not been started")
	ErrTwoFactorExpired   = errors.New("two-factor setup expired, start again")
	ErrInvalidCode        = errors.New("verification code is incorrect")
	ErrTwoFactorEnabled   = errors.New("two-factor authentication is already enabled")
)

const (
	DefaultPendingExpiry = 10 * time.Minute
	qrImageSize          = 200
)

// Upstream is the part of the account API the settings forms write to
type Upstream interface {
	GetProfile(ctx context.Context) (*entities.User, error)
	UpdateProfile(ctx context.Context, update entities.ProfileUpdate) (*entities.User, error)
	ChangePassword(ctx context.Context, change entities.PasswordChange) error
	UpdateSecurity(ctx context.Context, update entities.SecurityUpdate) error
}

type AuditLogger interface {
	LogSettingsChange(ctx context.Context, userID string, fields []string) error
	LogPasswordChange(ctx context.Context, userID string) error
	LogMFAEnable(ctx context.Context, userID string, method string) error
}

// ProfileForm is the editable profile
type ProfileForm struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=64,safe_string"`
	Email       string `json:"email" validate:"required,email"`
	Language    string `json:"language" validate:"omitempty,oneof=en ru zh"`
	Timezone    string `json:"timezone" validate:"omitempty,iana_timezone"`
}

// PasswordForm is the change-password form
type PasswordForm struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strong_password,nefield=CurrentPassword"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// TwoFactorForm carries the code from the authenticator app
type TwoFactorForm struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// TwoFactorSetup is shown while the user scans the secret
type TwoFactorSetup struct {
	Secret    string    `json:"secret"`
	URL       string    `json:"otpauth_url"`
	QRCode    []byte    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Config struct {
	Issuer        string
	PendingExpiry time.Duration
}

type pendingSecret struct {
	secret    string
	expiresAt time.Time
}

type Service struct {
	upstream  Upstream
	audit     AuditLogger
	validator *validation.Validator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]pendingSecret
}

func NewService(upstream Upstream, audit AuditLogger, cfg Config, logger *zap.Logger) *Service {
	if cfg.PendingExpiry <= 0 {
		cfg.PendingExpiry = DefaultPendingExpiry
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "AntiDetect Browser"
	}
	return &Service{
		upstream:  upstream,
		audit:     audit,
		validator: validation.NewValidator(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[string]pendingSecret),
	}
}

// Profile loads the current profile
func (s *Service) Profile(ctx context.Context) (*entities.User, error) {
	user, err := s.upstream.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return user, nil
}

// UpdateProfile validates and saves the profile. current is used to work out
// which fields changed for the audit trail.
func (s *Service) UpdateProfile(ctx context.Context, current entities.User, form ProfileForm) (*entities.User, error) {
	form.DisplayName = strings.TrimSpace(form.DisplayName)
	form.Email = strings.TrimSpace(form.Email)

	result := validation.Check(s.validator, form)
	if !result.Valid() {
		return nil, result.Errors()
	}
	form = result.Record()

	user, err := s.upstream.UpdateProfile(ctx, entities.ProfileUpdate{
		DisplayName: form.DisplayName,
		Email:       form.Email,
		Language:    form.Language,
		Timezone:    form.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if s.audit != nil {
		if err := s.audit.LogSettingsChange(ctx, current.ID, changedFields(current, form)); err != nil {
			s.logger.Warn("Failed to audit profile change", zap.Error(err))
		}
	}
	return user, nil
}

// ChangePassword validates the form and changes the password upstream
func (s *Service) ChangePassword(ctx context.Context, userID string, form PasswordForm) error {
	result := validation.Check(s.validator, form)
	if !result.Valid() {
		return result.Errors()
	}

	if err := s.upstream.ChangePassword(ctx, entities.PasswordChange{
		CurrentPassword: form.CurrentPassword,
		NewPassword:     form.NewPassword,
	}); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	if s.audit != nil {
		if err := s.audit.LogPasswordChange(ctx, userID); err != nil {
			s.logger.Warn("Failed to audit password change", zap.Error(err))
		}
	}
	return nil
}

// BeginTwoFactor generates a new TOTP secret for the user. The secret stays
// pending until EnableTwoFactor verifies a code from it.
func (s *Service) BeginTwoFactor(user entities.User) (*TwoFactorSetup, error) {
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: user.Email,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	img, err := key.Image(qrImageSize, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render totp qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode totp qr: %w", err)
	}

	expiresAt := s.now().Add(s.cfg.PendingExpiry)
	s.mu.Lock()
	s.pending[user.ID] = pendingSecret{secret: key.Secret(), expiresAt: expiresAt}
	s.mu.Unlock()

	return &TwoFactorSetup{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRCode:    buf.Bytes(),
		ExpiresAt: expiresAt,
	}, nil
}

// EnableTwoFactor checks code against the pending secret and turns on 2FA upstream
func (s *Service) EnableTwoFactor(ctx context.Context, userID string, form TwoFactorForm) error {
	form.Code = strings.TrimSpace(form.Code)
	if result := validation.Check(s.validator, form); !result.Valid() {
		return result.Errors()
	}

	now := s.now()
	s.mu.Lock()
	pending, ok := s.pending[userID]
	if ok && !now.Before(pending.expiresAt) {
		delete(s.pending, userID)
		s.mu.Unlock()
		return ErrTwoFactorExpired
	}
	s.mu.Unlock()
	if !ok {
		return ErrNoPendingTwoFactor
	}

	valid, err := totp.ValidateCustom(form.Code, pending.secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return ErrInvalidCode
	}

	if err := s.upstream.UpdateSecurity(ctx, entities.SecurityUpdate{
		TwoFactorEnabled: true,
		TOTPSecret:       pending.secret,
	}); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()

	if s.audit != nil {
		if err := s.audit.LogMFAEnable(ctx, userID, "totp"); err != nil {
			s.logger.Warn("Failed to audit two-factor enable", zap.Error(err))
		}
	}
	s.logger.Info("Two-factor authentication enabled", zap.String("user_id", userID))
	return nil
}

// PurgeExpired drops pending secrets past their expiry
func (s *Service) PurgeExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for userID, p := range s.pending {
		if !now.Before(p.expiresAt) {
			delete(s.pending, userID)
			purged++
		}
	}
	return purged
}

func changedFields(current entities.User, form ProfileForm) []string {
	var fields []string
	if current.DisplayName != form.DisplayName {
		fields = append(fields, "display_name")
	}
	if current.Email != form.Email {
		fields = append(fields, "email")
	}
	if current.Language != form.Language {
		fields = append(fields, "language")
	}
	if current.Timezone != form.Timezone {
		fields = append(fields, "timezone")
	}
	return fields
}
