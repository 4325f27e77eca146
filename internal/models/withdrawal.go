package models

import (
	"time"
)

// Withdrawal request statuses. pending is the only non-terminal state.
const (
	WithdrawalPending  = "PENDING"
	WithdrawalApproved = "APPROVED"
	WithdrawalRejected = "REJECTED"
)

// WithdrawalRequest is an author cash-out application. At most one PENDING
// request exists per author at any time.
type WithdrawalRequest struct {
	ID          string     `json:"id" db:"id"`
	AuthorID    int64      `json:"author_id" db:"author_id"`
	Amount      int64      `json:"amount" db:"amount"`
	Status      string     `json:"status" db:"status"`
	BankDetails string     `json:"bank_details" db:"bank_details"`
	DecidedBy   *int64     `json:"decided_by,omitempty" db:"decided_by"`
	DecisionNote string    `json:"decision_note,omitempty" db:"decision_note"`
	DecidedAt   *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
