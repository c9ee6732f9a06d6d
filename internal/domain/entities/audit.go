package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionLogin            AuditAction = "login"
	AuditActionLogout           AuditAction = "logout"
	AuditActionDeposit          AuditAction = "deposit"
	AuditActionPaymentConfirm   AuditAction = "payment_confirm"
	AuditActionSettingsChange   AuditAction = "settings_change"
	AuditActionPasswordChange   AuditAction = "password_change"
	AuditActionMFAEnable        AuditAction = "mfa_enable"
	AuditActionStatusTransition AuditAction = "status_transition"
)

type AuditLog struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	UserID       string                 `json:"user_id" db:"user_id"`
	Action       AuditAction            `json:"action" db:"action"`
	Resource     string                 `json:"resource" db:"resource"`
	ResourceID   string                 `json:"resource_id,omitempty" db:"resource_id"`
	IPAddress    string                 `json:"ip_address" db:"ip_address"`
	UserAgent    string                 `json:"user_agent" db:"user_agent"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	PreviousHash string                 `json:"-" db:"previous_hash"`
	CurrentHash  string                 `json:"-" db:"current_hash"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// CalculateHash hashes the record content together with the previous link
func (l *AuditLog) CalculateHash() string {
	meta, _ := json.Marshal(l.Metadata)
	h := sha256.New()
	h.Write([]byte(l.ID.String()))
	h.Write([]byte(l.UserID))
	h.Write([]byte(l.Action))
	h.Write([]byte(l.Resource))
	h.Write([]byte(l.ResourceID))
	h.Write(meta)
	h.Write([]byte(l.CreatedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(l.PreviousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// SetIntegrityFields links the record to the previous one in the chain
func (l *AuditLog) SetIntegrityFields(previousHash string) {
	l.PreviousHash = previousHash
	l.CurrentHash = l.CalculateHash()
}

// StatusTransitionLog represents a status change event for audit trail
type StatusTransitionLog struct {
	EntityID    string                 `json:"entity_id"`
	EntityType  string                 `json:"entity_type"`
	FromStatus  string                 `json:"from_status"`
	ToStatus    string                 `json:"to_status"`
	TriggeredBy string                 `json:"triggered_by"` // user, poller
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
