package models

import (
	"time"
)

// Wallet holds a reader's spendable Dia balance. Created lazily on first
// purchase or top-up.
type Wallet struct {
	OwnerID   int64     `json:"owner_id" db:"owner_id"`
	Balance   int64     `json:"balance" db:"balance"` // dias, never negative
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RevenueAccount is an author's earnings ledger. Balance is spendable and
// withdrawable, pending is reserved against an open withdrawal request,
// withdrawn only ever grows.
type RevenueAccount struct {
	AuthorID  int64     `json:"author_id" db:"author_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Pending   int64     `json:"pending" db:"pending"`
	Withdrawn int64     `json:"withdrawn" db:"withdrawn"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
