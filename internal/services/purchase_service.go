package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/spf13/viper"

	"github.com/diaverse/backend/internal/audit"
	"github.com/diaverse/backend/internal/models"
)

// PurchaseService handles readers buying access to priced content: chapters
// and generated voice tracks. A purchase debits the reader's wallet, credits
// the author's revenue account and records ownership, all in one database
// transaction.
type PurchaseService struct {
	db        *sql.DB
	pricing   *PricingService
	notifier  Notifier
	audit     *audit.Logger
	validator *ValidationHelper
	splitRate float64
}

type PurchaseResult struct {
	ContentID        int64  `json:"content_id"`
	PriceDias        int64  `json:"price_dias"`
	NewWalletBalance int64  `json:"new_wallet_balance"`
	OwnershipGranted bool   `json:"ownership_granted"`
	ReferenceID      string `json:"reference_id"`
}

func NewPurchaseService(db *sql.DB, pricing *PricingService, notifier Notifier) *PurchaseService {
	viper.SetDefault("platform.author_split_rate", 1.0)

	return &PurchaseService{
		db:        db,
		pricing:   pricing,
		notifier:  notifier,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
		splitRate: viper.GetFloat64("platform.author_split_rate"),
	}
}

// PurchaseContent buys one piece of content for a reader.
//
// Preconditions, checked in order with zero side effects on failure:
// content is published and paid, the reader does not already own it, and
// the wallet covers the price. A duplicate purchase is a hard error rather
// than a silent success so the ledger stays strictly append-once.
func (s *PurchaseService) PurchaseContent(readerID, contentID int64) (*PurchaseResult, error) {
	content, err := s.fetchContent(contentID)
	if err != nil {
		return nil, err
	}

	if content.Status != models.ContentStatusPublished || content.AccessType != models.AccessPaid {
		return nil, ErrContentNotPurchasable
	}

	price, err := s.priceOf(content)
	if err != nil {
		return nil, err
	}

	referenceID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin purchase: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM purchase_records WHERE reader_id = $1 AND content_id = $2)`,
		readerID, contentID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyPurchased
	}

	wallet, err := lockWallet(tx, readerID)
	if err != nil {
		return nil, err
	}

	wallet, err = DebitWallet(wallet, price)
	if err != nil {
		return nil, err
	}
	if err := saveWallet(tx, wallet); err != nil {
		return nil, err
	}
	if err := appendLedgerEntry(tx, readerID, models.AccountWallet, -price, models.EntryPurchase, referenceID); err != nil {
		return nil, err
	}

	authorShare := int64(float64(price) * s.splitRate)
	if authorShare > price {
		authorShare = price
	}

	revenue, err := lockRevenueAccount(tx, content.AuthorID)
	if err != nil {
		return nil, err
	}
	revenue = CreditRevenue(revenue, authorShare)
	if err := saveRevenueAccount(tx, revenue); err != nil {
		return nil, err
	}
	if err := appendLedgerEntry(tx, content.AuthorID, models.AccountRevenue, authorShare, models.EntryPurchase, referenceID); err != nil {
		return nil, err
	}

	// Any commission remainder goes to the platform account so no dia is
	// silently destroyed.
	if commission := price - authorShare; commission > 0 {
		if err := s.creditPlatform(tx, commission, referenceID); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO purchase_records (reader_id, content_id, price_dias, created_at)
		VALUES ($1, $2, $3, NOW())`, readerID, contentID, price)
	if err != nil {
		// The unique constraint resolves a concurrent race on the same
		// (reader, content) pair to exactly one winner.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyPurchased
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}

	s.audit.LogMovement(referenceID, readerID, -price, models.EntryPurchase)
	go s.notifySale(content.AuthorID, contentID, authorShare)

	return &PurchaseResult{
		ContentID:        contentID,
		PriceDias:        price,
		NewWalletBalance: wallet.Balance,
		OwnershipGranted: true,
		ReferenceID:      referenceID,
	}, nil
}

func (s *PurchaseService) fetchContent(contentID int64) (*models.Content, error) {
	var c models.Content
	err := s.db.QueryRow(`
		SELECT id, author_id, kind, status, access_type, char_count
		FROM contents WHERE id = $1`, contentID).
		Scan(&c.ID, &c.AuthorID, &c.Kind, &c.Status, &c.AccessType, &c.CharCount)
	if err == sql.ErrNoRows {
		return nil, ErrContentNotPurchasable
	}
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	return &c, nil
}

func (s *PurchaseService) priceOf(content *models.Content) (int64, error) {
	if content.Kind == models.ContentVoice {
		return s.pricing.GetVoicePrice(content.CharCount)
	}
	return s.pricing.GetChapterPrice(content.CharCount)
}

func (s *PurchaseService) creditPlatform(tx *sql.Tx, amount int64, referenceID string) error {
	platformID := viper.GetInt64("platform.system_account")
	account, err := lockRevenueAccount(tx, platformID)
	if err != nil {
		return err
	}
	account = CreditRevenue(account, amount)
	if err := saveRevenueAccount(tx, account); err != nil {
		return err
	}
	return appendLedgerEntry(tx, platformID, models.AccountRevenue, amount, models.EntryPurchase, referenceID)
}

func (s *PurchaseService) notifySale(authorID, contentID, amount int64) {
	s.notifier.CreateAsync(authorID, models.NotifyContentSold,
		"Your content sold",
		fmt.Sprintf("A reader purchased your content and you earned %d dias.", amount),
		map[string]any{"content_id": contentID, "amount": amount})
}

// CreatePurchase handles the purchase endpoint.
// @Summary Purchase content
// @Description Buy access to a priced chapter or voice track with dias
// @Tags purchases
// @Accept json
// @Produce json
// @Param purchase body object{contentId=int} true "Content to purchase"
// @Success 201 {object} PurchaseResult
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /purchases [post]
func (s *PurchaseService) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	readerID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ContentID int64 `json:"contentId" validate:"required,gt=0"`
	}

	maxBytes := 1 << 20
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.PurchaseContent(readerID, req.ContentID)
	if err != nil {
		log.Printf("[PURCHASE] Purchase failed for reader %d, content %d: %v", readerID, req.ContentID, err)
		SendBusinessError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// GetWalletBalance handles the wallet enquiry endpoint.
// @Summary Get wallet balance
// @Description Retrieve the caller's spendable dia balance
// @Tags wallet
// @Produce json
// @Success 200 {object} object{balance=int64}
// @Failure 401 {object} ErrorResponse
// @Router /wallet [get]
func (s *PurchaseService) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	readerID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var balance int64
	err := s.db.QueryRow(`SELECT balance FROM wallets WHERE owner_id = $1`, readerID).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		SendErrorResponse(w, "Failed to fetch wallet", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

// ListLedgerEntries handles the ledger enquiry endpoint.
// @Summary List recent ledger entries
// @Description Get the caller's recent dia movements, newest first
// @Tags ledger
// @Produce json
// @Param limit query int false "Number of entries (default 20, max 100)"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /ledger [get]
func (s *PurchaseService) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	rows, err := s.db.Query(`
		SELECT id, owner_id, account_type, amount_delta, kind, reference_id, created_at
		FROM ledger_entries
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch ledger entries", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.AccountType, &e.AmountDelta, &e.Kind, &e.ReferenceID, &e.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch ledger entries", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
