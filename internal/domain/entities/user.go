package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the signed-in account as returned by the account API
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	Language         string    `json:"language,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuthTokens are the upstream credentials held on behalf of a browser session
type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Balance is the account balance shown in the dashboard header
type Balance struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProfileUpdate carries the editable profile fields
type ProfileUpdate struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Language    string `json:"language"`
	Timezone    string `json:"timezone"`
}

// PasswordChange carries a password change for the account API
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// SecurityUpdate toggles account security features upstream
type SecurityUpdate struct {
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	TOTPSecret       string `json:"totp_secret,omitempty"`
}

// LoginResult is a successful upstream login
type LoginResult struct {
	User   User
	Tokens AuthTokens
}
