package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/services/audit"
	"github.com/antidetect/dashboard_service/internal/domain/services/auth"
	"github.com/antidetect/dashboard_service/internal/domain/services/deposit"
	"github.com/antidetect/dashboard_service/internal/domain/services/fees"
	"github.com/antidetect/dashboard_service/internal/domain/services/history"
	"github.com/antidetect/dashboard_service/internal/domain/services/settings"
	"github.com/antidetect/dashboard_service/internal/infrastructure/adapters/accountapi"
	"github.com/antidetect/dashboard_service/internal/infrastructure/config"
	"github.com/antidetect/dashboard_service/internal/infrastructure/realtime"
	"github.com/antidetect/dashboard_service/internal/infrastructure/repositories"
	"github.com/antidetect/dashboard_service/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Logger *logger.Logger
	ZapLog *zap.Logger

	// Adapters and storage
	AccountAPI *accountapi.Client
	AuditRepo  *repositories.AuditRepository
	TokenStore *repositories.TokenStore
	Hub        *realtime.Hub

	// Services
	AuditService    *audit.Service
	AuthProvider    *auth.Provider
	FeeService      *fees.Service
	HistoryService  *history.Service
	SettingsService *settings.Service
	DepositManager  *deposit.Manager
}

// NewContainer wires every service. db and redisClient must already be connected.
func NewContainer(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	c := &Container{
		Config: cfg,
		DB:     db,
		Redis:  redisClient,
		Logger: log,
		ZapLog: zapLog,
	}

	c.AccountAPI = accountapi.NewClient(accountapi.Config{
		BaseURL:        cfg.AccountAPI.BaseURL,
		Timeout:        cfg.AccountAPI.Timeout,
		MaxRetries:     cfg.AccountAPI.MaxRetries,
		BreakerTimeout: cfg.AccountAPI.BreakerTimeout,
		BreakerTrips:   cfg.AccountAPI.BreakerTrips,
	}, zapLog.Named("account_api"))

	c.AuditRepo = repositories.NewAuditRepository(db)
	c.AuditService = audit.NewService(c.AuditRepo, zapLog.Named("audit"))
	c.AuditService.EnableWORM(cfg.Audit.HashChain)
	if err := c.AuditService.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize audit chain: %w", err)
	}

	c.TokenStore = repositories.NewTokenStore(redisClient, cfg.Auth.EncryptionKey)
	c.AuthProvider = auth.NewProvider(c.AccountAPI, c.TokenStore, c.AuditService, auth.Config{
		SessionTTL: cfg.Auth.SessionTTL,
	}, zapLog.Named("auth"))

	defaults, err := feeSchedule(cfg.Fees)
	if err != nil {
		return nil, err
	}
	c.FeeService = fees.NewService(c.AccountAPI, defaults, zapLog.Named("fees"))
	c.HistoryService = history.NewService(c.AccountAPI, zapLog.Named("history"))
	c.SettingsService = settings.NewService(c.AccountAPI, c.AuditService, settings.Config{
		Issuer:        cfg.Auth.TOTPIssuer,
		PendingExpiry: cfg.Auth.PendingTOTPExpiry,
	}, zapLog.Named("settings"))

	c.Hub = realtime.NewHub(zapLog.Named("realtime"))

	presets, err := cfg.Deposit.Presets()
	if err != nil {
		return nil, err
	}
	instructions := make(map[entities.PaymentMethod]string, len(cfg.Deposit.Instructions))
	for method, text := range cfg.Deposit.Instructions {
		instructions[entities.PaymentMethod(strings.ToLower(method))] = text
	}
	c.DepositManager = deposit.NewManager(deposit.Config{
		PollInterval:   cfg.Deposit.PollInterval,
		RequestTimeout: cfg.AccountAPI.Timeout,
		Currency:       cfg.Deposit.Currency,
		Presets:        presets,
		Instructions:   instructions,
	}, deposit.Dependencies{
		Gateway:   c.AccountAPI,
		Fees:      c.FeeService,
		Notifier:  c.Hub,
		Clipboard: c.Hub,
		Balance:   c.AuthProvider,
		Audit:     c.AuditService,
		Logger:    zapLog.Named("deposit"),
	})

	// Signing out ends the deposit workflow and the user's realtime connections
	c.AuthProvider.OnLogout(func(userID string) {
		c.DepositManager.Release(userID)
		c.Hub.Disconnect(userID)
	})

	return c, nil
}

// feeSchedule builds the fallback schedule from configured rates
func feeSchedule(cfg config.FeesConfig) (entities.FeeSchedule, error) {
	schedule := entities.DefaultFeeSchedule()
	for method, raw := range cfg.DefaultRates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fee rate for %s: %w", method, err)
		}
		schedule[entities.PaymentMethod(strings.ToLower(method))] = rate
	}
	return schedule, nil
}

// Close releases in-memory sessions and realtime connections
func (c *Container) Close() {
	c.DepositManager.CloseAll()
	c.Hub.Close()
}
