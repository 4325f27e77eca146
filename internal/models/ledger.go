package models

import (
	"time"
)

// Ledger entry kinds. Every balance mutation writes exactly one entry.
const (
	EntryPurchase        = "purchase"
	EntryWithdrawReserve = "withdraw_reserve"
	EntryWithdrawRelease = "withdraw_release"
	EntryWithdrawSettle  = "withdraw_settle"
	EntryVoiceGeneration = "voice_generation"
	EntryTopup           = "topup"
)

// Account types a ledger entry can belong to.
const (
	AccountWallet  = "wallet"
	AccountRevenue = "revenue"
)

// LedgerEntry is an append-only record of a single balance mutation.
// AmountDelta is signed: negative for debits, positive for credits.
type LedgerEntry struct {
	ID          int64     `json:"id" db:"id"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	AccountType string    `json:"account_type" db:"account_type"`
	AmountDelta int64     `json:"amount_delta" db:"amount_delta"`
	Kind        string    `json:"kind" db:"kind"`
	ReferenceID string    `json:"reference_id" db:"reference_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
