// Package auth inspects upstream access tokens and binds browser sessions to a client
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when the token carries no exp claim
var ErrNoExpiry = errors.New("token has no expiry")

// UpstreamClaims are the claims the account API puts in its access tokens.
// The signature is checked by the account API, not here.
type UpstreamClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo is what the dashboard reads out of an access token
type TokenInfo struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// InspectToken reads claims from an upstream access token without verifying it
func InspectToken(token string) (*TokenInfo, error) {
	claims := &UpstreamClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	info := &TokenInfo{Subject: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt == nil {
		return info, ErrNoExpiry
	}
	info.ExpiresAt = claims.ExpiresAt.Time
	return info, nil
}

// SessionTTL returns how long a session backed by token should live. Opaque
// tokens and tokens without exp fall back to def; the result never exceeds def.
func SessionTTL(token string, now time.Time, def time.Duration) time.Duration {
	info, err := InspectToken(token)
	if err != nil {
		return def
	}
	ttl := info.ExpiresAt.Sub(now)
	if ttl > def {
		return def
	}
	return ttl
}

// BindingHash ties a session id to the client that created it
func BindingHash(sessionID, userAgent string) string {
	sum := sha256.Sum256([]byte(sessionID + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}
