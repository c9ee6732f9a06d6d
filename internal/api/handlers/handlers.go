// Package handlers provides HTTP request handlers for the dashboard API.
// This file re-exports handler constructors from subpackages.
package handlers

import (
	"github.com/antidetect/dashboard_service/internal/api/handlers/auth"
	"github.com/antidetect/dashboard_service/internal/api/handlers/notifications"
	"github.com/antidetect/dashboard_service/internal/api/handlers/settings"
	"github.com/antidetect/dashboard_service/internal/api/handlers/wallet"
)

// Re-export types from subpackages
type (
	AuthHandlers     = auth.AuthHandlers
	SettingsHandlers = settings.SettingsHandlers
	WalletHandlers   = wallet.WalletHandlers
	DepositHandlers  = wallet.DepositHandlers
	WebSocketHandler = notifications.WebSocketHandler
)

// Re-export constructors
var (
	NewAuthHandlers     = auth.NewAuthHandlers
	NewSettingsHandlers = settings.NewSettingsHandlers
	NewWalletHandlers   = wallet.NewWalletHandlers
	NewDepositHandlers  = wallet.NewDepositHandlers
	NewWebSocketHandler = notifications.NewWebSocketHandler
)
