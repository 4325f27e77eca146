package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/diaverse/backend/internal/models"
)

// Ledger primitives. Debit and Credit are pure state transitions; the
// orchestrating services commit the new state together with exactly one
// ledger entry inside the same database transaction.

// DebitWallet returns the wallet with amount removed, or ErrInsufficientFunds
// if the balance would go negative. The input wallet is not modified.
func DebitWallet(w models.Wallet, amount int64) (models.Wallet, error) {
	if amount > w.Balance {
		return w, ErrInsufficientFunds
	}
	w.Balance -= amount
	return w, nil
}

// CreditWallet returns the wallet with amount added. No upper bound.
func CreditWallet(w models.Wallet, amount int64) models.Wallet {
	w.Balance += amount
	return w
}

// DebitRevenue removes amount from the spendable balance bucket, or fails
// with ErrInsufficientBalance.
func DebitRevenue(a models.RevenueAccount, amount int64) (models.RevenueAccount, error) {
	if amount > a.Balance {
		return a, ErrInsufficientBalance
	}
	a.Balance -= amount
	return a, nil
}

// CreditRevenue adds amount to the spendable balance bucket.
func CreditRevenue(a models.RevenueAccount, amount int64) models.RevenueAccount {
	a.Balance += amount
	return a
}

// lockWallet gets-or-creates the reader's wallet and locks its row for the
// remainder of the transaction.
func lockWallet(tx *sql.Tx, ownerID int64) (models.Wallet, error) {
	var w models.Wallet

	_, err := tx.Exec(`
		INSERT INTO wallets (owner_id, balance, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (owner_id) DO NOTHING`, ownerID, time.Now())
	if err != nil {
		return w, fmt.Errorf("create wallet: %w", err)
	}

	err = tx.QueryRow(`
		SELECT owner_id, balance, updated_at
		FROM wallets
		WHERE owner_id = $1
		FOR UPDATE`, ownerID).Scan(&w.OwnerID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		return w, fmt.Errorf("lock wallet: %w", err)
	}

	return w, nil
}

func saveWallet(tx *sql.Tx, w models.Wallet) error {
	_, err := tx.Exec(`
		UPDATE wallets SET balance = $1, updated_at = $2
		WHERE owner_id = $3`, w.Balance, time.Now(), w.OwnerID)
	return err
}

// lockRevenueAccount gets-or-creates the author's revenue account and locks
// its row. The lock also serializes the at-most-one-pending withdrawal check.
func lockRevenueAccount(tx *sql.Tx, authorID int64) (models.RevenueAccount, error) {
	var a models.RevenueAccount

	_, err := tx.Exec(`
		INSERT INTO revenue_accounts (author_id, balance, pending, withdrawn, updated_at)
		VALUES ($1, 0, 0, 0, $2)
		ON CONFLICT (author_id) DO NOTHING`, authorID, time.Now())
	if err != nil {
		return a, fmt.Errorf("create revenue account: %w", err)
	}

	err = tx.QueryRow(`
		SELECT author_id, balance, pending, withdrawn, updated_at
		FROM revenue_accounts
		WHERE author_id = $1
		FOR UPDATE`, authorID).Scan(&a.AuthorID, &a.Balance, &a.Pending, &a.Withdrawn, &a.UpdatedAt)
	if err != nil {
		return a, fmt.Errorf("lock revenue account: %w", err)
	}

	return a, nil
}

func saveRevenueAccount(tx *sql.Tx, a models.RevenueAccount) error {
	_, err := tx.Exec(`
		UPDATE revenue_accounts SET balance = $1, pending = $2, withdrawn = $3, updated_at = $4
		WHERE author_id = $5`, a.Balance, a.Pending, a.Withdrawn, time.Now(), a.AuthorID)
	return err
}

// appendLedgerEntry writes the audit row paired with a balance mutation.
func appendLedgerEntry(tx *sql.Tx, ownerID int64, accountType string, delta int64, kind, referenceID string) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (owner_id, account_type, amount_delta, kind, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ownerID, accountType, delta, kind, referenceID, time.Now())
	return err
}
