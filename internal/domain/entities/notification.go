package entities

import "time"

// ToastVariant selects how a toast is rendered
type ToastVariant string

const (
	ToastVariantDefault     ToastVariant = "default"
	ToastVariantSuccess     ToastVariant = "success"
	ToastVariantDestructive ToastVariant = "destructive"
)

// Toast is a transient user notification
type Toast struct {
	Variant     ToastVariant `json:"variant"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
}

// Event types pushed to connected browsers
const (
	EventTypeToast          = "toast"
	EventTypeClipboard      = "clipboard"
	EventTypeDepositCreated = "deposit.created"
	EventTypeDepositStatus  = "deposit.status"
	EventTypeBalance        = "balance"
)

// Event is a realtime message delivered to a user's browser sessions
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
