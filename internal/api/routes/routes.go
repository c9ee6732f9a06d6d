package routes

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/antidetect/dashboard_service/internal/api/handlers"
	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/api/middleware"
	"github.com/antidetect/dashboard_service/internal/infrastructure/di"
	"github.com/antidetect/dashboard_service/pkg/circuitbreaker"
	"github.com/antidetect/dashboard_service/pkg/metrics"
	"github.com/antidetect/dashboard_service/pkg/ratelimit"
)

// SetupRoutes builds the router for the dashboard API.
// The login rate limiter is returned so its idle clients can be pruned.
func SetupRoutes(container *di.Container) (*gin.Engine, *middleware.AuthRateLimiter) {
	cfg := container.Config
	log := container.ZapLog

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	health := common.NewHealthHandler(map[string]common.HealthCheck{
		"database": func(ctx context.Context) error { return container.DB.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return container.Redis.Ping(ctx).Err() },
		"account_api": func(context.Context) error {
			if container.AccountAPI.BreakerState() == circuitbreaker.StateOpen {
				return errors.New("circuit breaker open")
			}
			return nil
		},
	})
	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authHandlers := handlers.NewAuthHandlers(container.AuthProvider, cfg.Environment == "production", log)
	walletHandlers := handlers.NewWalletHandlers(container.AuthProvider, container.HistoryService, container.AuditService, log)
	depositHandlers := handlers.NewDepositHandlers(container.DepositManager, log)
	settingsHandlers := handlers.NewSettingsHandlers(container.SettingsService, container.AuthProvider, log)
	wsHandler := handlers.NewWebSocketHandler(container.Hub, cfg.Server.AllowedOrigins, log)

	loginLimiter := middleware.NewAuthRateLimiter(cfg.Auth.LoginRateLimit)
	authenticate := middleware.Authentication(container.AuthProvider, log)

	// The websocket is long lived, so it skips the body limit and request timeout
	router.GET("/api/v1/ws", authenticate, wsHandler.Serve)

	v1 := router.Group("/api/v1")
	v1.Use(
		common.MaxRequestBodySizeMiddleware(common.DefaultMaxBodySize),
		middleware.TimeoutMiddleware(cfg.Server.RequestTimeout),
	)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", loginLimiter.Limit(), authHandlers.Login)
		authGroup.POST("/logout", authenticate, authHandlers.Logout)
		authGroup.GET("/me", authenticate, authHandlers.Me)
	}

	protected := v1.Group("")
	protected.Use(authenticate)

	// Per-user limits run after authentication so they key on the user id
	depositLimit := func(c *gin.Context) { c.Next() }
	if rl := cfg.RateLimit; rl.Enabled {
		limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounter(container.Redis))
		protected.Use(ratelimit.Middleware(limiter, "api",
			ratelimit.Limit{MaxRequests: rl.UserLimit, Window: rl.Window}, rl.FailOpen, log))
		depositLimit = ratelimit.Middleware(limiter, "deposit",
			ratelimit.Limit{MaxRequests: rl.DepositLimit, Window: rl.Window}, rl.FailOpen, log)
	}

	account := protected.Group("/account")
	{
		account.GET("/balance", walletHandlers.GetBalance)
		account.GET("/activity", walletHandlers.GetActivity)
	}

	settings := protected.Group("/settings")
	{
		settings.GET("/profile", settingsHandlers.GetProfile)
		settings.PUT("/profile", settingsHandlers.UpdateProfile)
		settings.PUT("/password", settingsHandlers.ChangePassword)
		settings.POST("/2fa/setup", settingsHandlers.BeginTwoFactor)
		settings.POST("/2fa/enable", settingsHandlers.EnableTwoFactor)
	}

	depositGroup := protected.Group("/deposit")
	{
		depositGroup.GET("/options", depositHandlers.GetOptions)
		depositGroup.GET("/session", depositHandlers.GetSession)
		depositGroup.DELETE("/session", depositHandlers.CloseSession)
		depositGroup.PUT("/session/preset", depositHandlers.SelectPreset)
		depositGroup.PUT("/session/custom", depositHandlers.SetCustomAmount)
		depositGroup.PUT("/session/method", depositHandlers.SelectMethod)
		depositGroup.POST("/session/confirm", depositLimit, depositHandlers.Confirm)
		depositGroup.POST("/session/paid", depositLimit, depositHandlers.MarkPaid)
		depositGroup.POST("/session/copy", depositHandlers.Copy)
		depositGroup.GET("/session/qr", depositHandlers.GetQRCode)
	}

	protected.GET("/transactions", walletHandlers.GetTransactions)

	return router, loginLimiter
}
