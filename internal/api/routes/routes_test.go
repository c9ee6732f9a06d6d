package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
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
	"github.com/antidetect/dashboard_service/internal/infrastructure/di"
	"github.com/antidetect/dashboard_service/internal/infrastructure/realtime"
	"github.com/antidetect/dashboard_service/internal/infrastructure/repositories"
	"github.com/antidetect/dashboard_service/pkg/logger"
)

// testContainer wires real services against unreachable backends; only
// unauthenticated paths are exercised.
func testContainer(t *testing.T) *di.Container {
	t.Helper()
	log := zap.NewNop()
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = redisClient.Close() })

	api := accountapi.NewClient(accountapi.Config{BaseURL: "http://127.0.0.1:1"}, log)
	auditSvc := audit.NewService(nil, log)
	provider := auth.NewProvider(api, repositories.NewTokenStore(redisClient, "test-key"), auditSvc, auth.Config{}, log)
	feeSvc := fees.NewService(api, entities.DefaultFeeSchedule(), log)
	hub := realtime.NewHub(log)
	t.Cleanup(hub.Close)

	return &di.Container{
		Config: &config.Config{
			Environment: "test",
			Server:      config.ServerConfig{RequestTimeout: time.Second},
			Auth:        config.AuthConfig{LoginRateLimit: 2},
		},
		Redis:           redisClient,
		Logger:          logger.FromZap(log),
		ZapLog:          log,
		AccountAPI:      api,
		Hub:             hub,
		AuditService:    auditSvc,
		AuthProvider:    provider,
		FeeService:      feeSvc,
		HistoryService:  history.NewService(api, log),
		SettingsService: settings.NewService(api, auditSvc, settings.Config{}, log),
		DepositManager:  deposit.NewManager(deposit.Config{}, deposit.Dependencies{Gateway: api, Fees: feeSvc, Notifier: hub, Clipboard: hub}),
	}
}

func TestSetupRoutes_RegistersDashboardAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, _ := SetupRoutes(testContainer(t))

	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"GET /api/v1/auth/me",
		"GET /api/v1/account/balance",
		"GET /api/v1/account/activity",
		"GET /api/v1/settings/profile",
		"PUT /api/v1/settings/profile",
		"PUT /api/v1/settings/password",
		"POST /api/v1/settings/2fa/setup",
		"POST /api/v1/settings/2fa/enable",
		"GET /api/v1/deposit/options",
		"GET /api/v1/deposit/session",
		"DELETE /api/v1/deposit/session",
		"PUT /api/v1/deposit/session/preset",
		"PUT /api/v1/deposit/session/custom",
		"PUT /api/v1/deposit/session/method",
		"POST /api/v1/deposit/session/confirm",
		"POST /api/v1/deposit/session/paid",
		"POST /api/v1/deposit/session/copy",
		"GET /api/v1/deposit/session/qr",
		"GET /api/v1/transactions",
		"GET /api/v1/ws",
	} {
		assert.True(t, registered[want], "route %s not registered", want)
	}
}

func TestSetupRoutes_ProtectedRoutesNeedSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, _ := SetupRoutes(testContainer(t))

	for _, path := range []string{"/api/v1/deposit/options", "/api/v1/account/balance", "/api/v1/transactions", "/api/v1/ws"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}
}

func TestSetupRoutes_LoginIsRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, _ := SetupRoutes(testContainer(t))

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.1.1.1:1234"
		router.ServeHTTP(w, req)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
