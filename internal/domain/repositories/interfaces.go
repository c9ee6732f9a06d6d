package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
)

// AuditLogFilter narrows audit log queries
type AuditLogFilter struct {
	UserID    *string
	Action    *entities.AuditAction
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
	// Ascending lists oldest first; the default is newest first
	Ascending bool
}

// AuditRepository persists the hash-chained audit trail
type AuditRepository interface {
	Create(ctx context.Context, log *entities.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]*entities.AuditLog, error)
	Count(ctx context.Context, filter AuditLogFilter) (int64, error)
	GetLastHash(ctx context.Context) (string, error)
}

// StoredSession is the server-side state behind a browser session id
type StoredSession struct {
	ID        string              `json:"id"`
	User      entities.User       `json:"user"`
	Tokens    entities.AuthTokens `json:"tokens"`
	IPAddress string              `json:"ip_address"`
	UserAgent string              `json:"user_agent"`
	Binding   string              `json:"binding"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ErrSessionNotFound is returned when no stored session matches the id
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps authenticated sessions across restarts
type SessionStore interface {
	Save(ctx context.Context, session *StoredSession, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
}
