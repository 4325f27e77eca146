package models

import (
	"time"
)

// Notification types emitted by the ledger flows.
const (
	NotifyContentSold        = "CONTENT_SOLD"
	NotifyWithdrawalApproved = "WITHDRAWAL_APPROVED"
	NotifyWithdrawalRejected = "WITHDRAWAL_REJECTED"
	NotifyVoiceReady         = "VOICE_READY"
	NotifyVoiceFailed        = "VOICE_FAILED"
)

// Notification is a best-effort message to a user. Persisted for in-app
// display; delivery (push, email) is handled by an external dispatcher
// consuming the notification queue.
type Notification struct {
	ID          int64     `json:"id" db:"id"`
	RecipientID int64     `json:"recipient_id" db:"recipient_id"`
	Type        string    `json:"type" db:"type"`
	Title       string    `json:"title" db:"title"`
	Message     string    `json:"message" db:"message"`
	Payload     string    `json:"payload,omitempty" db:"payload"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Topup records an externally-settled fiat purchase of dias. Reference is
// unique; it is the idempotency guard against double-crediting a wallet.
type Topup struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	AmountDias int64     `json:"amount_dias" db:"amount_dias"`
	Reference  string    `json:"reference" db:"reference"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
