package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/diaverse/backend/internal/audit"
	"github.com/diaverse/backend/internal/models"
)

// WithdrawalService runs the author cash-out workflow: submit moves funds
// from balance to pending, a moderator decision settles them to withdrawn
// (approve) or refunds them to balance (reject). Decisions are terminal.
// Actual fiat payout happens outside the platform; approval only reflects
// that the funds have left the payable balance.
type WithdrawalService struct {
	db          *sql.DB
	notifier    Notifier
	audit       *audit.Logger
	validator   *ValidationHelper
	minWithdraw int64
}

func NewWithdrawalService(db *sql.DB, notifier Notifier) *WithdrawalService {
	viper.SetDefault("platform.min_withdraw_amount", 1000)

	return &WithdrawalService{
		db:          db,
		notifier:    notifier,
		audit:       audit.NewLogger(),
		validator:   NewValidationHelper(),
		minWithdraw: viper.GetInt64("platform.min_withdraw_amount"),
	}
}

// SubmitWithdraw reserves amount dias against a new pending request.
// The revenue row lock serializes the at-most-one-pending check, so
// concurrent submissions by the same author yield exactly one request.
func (s *WithdrawalService) SubmitWithdraw(authorID, amount int64, bankDetails string) (*models.WithdrawalRequest, error) {
	if amount < s.minWithdraw {
		return nil, ErrAmountTooSmall
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin withdrawal: %w", err)
	}
	defer tx.Rollback()

	account, err := lockRevenueAccount(tx, authorID)
	if err != nil {
		return nil, err
	}

	var pendingExists bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM withdrawal_requests WHERE author_id = $1 AND status = $2)`,
		authorID, models.WithdrawalPending).Scan(&pendingExists)
	if err != nil {
		return nil, err
	}
	if pendingExists {
		return nil, ErrPendingRequestExists
	}

	account, err = DebitRevenue(account, amount)
	if err != nil {
		return nil, err
	}
	account.Pending += amount
	if err := saveRevenueAccount(tx, account); err != nil {
		return nil, err
	}

	request := &models.WithdrawalRequest{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		Amount:      amount,
		Status:      models.WithdrawalPending,
		BankDetails: bankDetails,
		CreatedAt:   time.Now(),
	}

	if err := appendLedgerEntry(tx, authorID, models.AccountRevenue, -amount, models.EntryWithdrawReserve, request.ID); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO withdrawal_requests (id, author_id, amount, status, bank_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		request.ID, request.AuthorID, request.Amount, request.Status, request.BankDetails, request.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit withdrawal: %w", err)
	}

	s.audit.LogMovement(request.ID, authorID, -amount, models.EntryWithdrawReserve)
	return request, nil
}

// ApproveWithdraw settles a pending request: the reserved dias move from the
// pending bucket into the monotonic withdrawn bucket.
func (s *WithdrawalService) ApproveWithdraw(requestID string, moderatorID int64, note string) error {
	return s.decide(requestID, moderatorID, note, true)
}

// RejectWithdraw refunds a pending request in full: submit-then-reject is a
// no-op on the spendable balance.
func (s *WithdrawalService) RejectWithdraw(requestID string, moderatorID int64, note string) error {
	return s.decide(requestID, moderatorID, note, false)
}

func (s *WithdrawalService) decide(requestID string, moderatorID int64, note string, approve bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin decision: %w", err)
	}
	defer tx.Rollback()

	var request models.WithdrawalRequest
	err = tx.QueryRow(`
		SELECT id, author_id, amount, status
		FROM withdrawal_requests
		WHERE id = $1
		FOR UPDATE`, requestID).
		Scan(&request.ID, &request.AuthorID, &request.Amount, &request.Status)
	if err == sql.ErrNoRows {
		return ErrAlreadyDecided
	}
	if err != nil {
		return fmt.Errorf("lock withdrawal request: %w", err)
	}

	if request.Status != models.WithdrawalPending {
		return ErrAlreadyDecided
	}

	account, err := lockRevenueAccount(tx, request.AuthorID)
	if err != nil {
		return err
	}

	account.Pending -= request.Amount

	var newStatus, entryKind, notifType, notifTitle, notifMessage string
	var delta int64
	if approve {
		account.Withdrawn += request.Amount
		newStatus = models.WithdrawalApproved
		entryKind = models.EntryWithdrawSettle
		delta = -request.Amount
		notifType = models.NotifyWithdrawalApproved
		notifTitle = "Withdrawal approved"
		notifMessage = fmt.Sprintf("Your withdrawal of %d dias was approved and will be paid out.", request.Amount)
	} else {
		account = CreditRevenue(account, request.Amount)
		newStatus = models.WithdrawalRejected
		entryKind = models.EntryWithdrawRelease
		delta = request.Amount
		notifType = models.NotifyWithdrawalRejected
		notifTitle = "Withdrawal rejected"
		notifMessage = fmt.Sprintf("Your withdrawal of %d dias was rejected and refunded to your balance.", request.Amount)
	}

	if err := saveRevenueAccount(tx, account); err != nil {
		return err
	}
	if err := appendLedgerEntry(tx, request.AuthorID, models.AccountRevenue, delta, entryKind, request.ID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE withdrawal_requests
		SET status = $1, decided_by = $2, decision_note = $3, decided_at = $4
		WHERE id = $5`, newStatus, moderatorID, note, time.Now(), requestID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decision: %w", err)
	}

	s.audit.LogDecision(requestID, moderatorID, request.Amount, newStatus)
	go s.notifier.CreateAsync(request.AuthorID, notifType, notifTitle, notifMessage,
		map[string]any{"request_id": requestID, "amount": request.Amount})

	return nil
}

// SubmitWithdrawal handles the withdrawal submission endpoint.
// @Summary Submit withdrawal request
// @Description Reserve revenue balance against a new cash-out request
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param withdrawal body object{amount=int,bankDetails=string} true "Withdrawal details"
// @Success 201 {object} models.WithdrawalRequest
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals [post]
func (s *WithdrawalService) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	authorID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		BankDetails string `json:"bankDetails" validate:"required,max=500"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
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

	request, err := s.SubmitWithdraw(authorID, req.Amount, req.BankDetails)
	if err != nil {
		log.Printf("[WITHDRAWAL] Submit failed for author %d: %v", authorID, err)
		SendBusinessError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// ApproveWithdrawal handles the moderator approval endpoint.
// @Summary Approve withdrawal request
// @Description Settle a pending withdrawal into the withdrawn bucket
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param decision body object{note=string} false "Decision note"
// @Success 200 {object} object{status=string}
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals/{id}/approve [put]
func (s *WithdrawalService) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, true)
}

// RejectWithdrawal handles the moderator rejection endpoint.
// @Summary Reject withdrawal request
// @Description Refund a pending withdrawal to the author's balance
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param decision body object{note=string} false "Decision note"
// @Success 200 {object} object{status=string}
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals/{id}/reject [put]
func (s *WithdrawalService) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, false)
}

func (s *WithdrawalService) handleDecision(w http.ResponseWriter, r *http.Request, approve bool) {
	moderatorID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(requestID); err != nil {
		SendErrorResponse(w, "Invalid request id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Note string `json:"note" validate:"max=500"`
	}
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.Decode(&req)
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var err error
	status := models.WithdrawalRejected
	if approve {
		status = models.WithdrawalApproved
		err = s.ApproveWithdraw(requestID, moderatorID, req.Note)
	} else {
		err = s.RejectWithdraw(requestID, moderatorID, req.Note)
	}
	if err != nil {
		log.Printf("[WITHDRAWAL] Decision failed for request %s: %v", requestID, err)
		SendBusinessError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// ListOwnWithdrawals handles the author history endpoint.
// @Summary List own withdrawal requests
// @Description Get the caller's withdrawal requests, newest first
// @Tags withdrawals
// @Produce json
// @Success 200 {object} object{requests=[]models.WithdrawalRequest,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /withdrawals [get]
func (s *WithdrawalService) ListOwnWithdrawals(w http.ResponseWriter, r *http.Request) {
	authorID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requests, err := s.fetchWithdrawals(`WHERE author_id = $1`, authorID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawal requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"requests": requests, "count": len(requests)})
}

// ListPendingWithdrawals handles the moderator queue endpoint.
// @Summary List pending withdrawal requests
// @Description Get all withdrawal requests awaiting a decision
// @Tags withdrawals
// @Produce json
// @Success 200 {object} object{requests=[]models.WithdrawalRequest,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /withdrawals/pending [get]
func (s *WithdrawalService) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requests, err := s.fetchWithdrawals(`WHERE status = $1`, models.WithdrawalPending)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawal requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"requests": requests, "count": len(requests)})
}

func (s *WithdrawalService) fetchWithdrawals(where string, arg any) ([]models.WithdrawalRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, author_id, amount, status, bank_details, decided_by, COALESCE(decision_note, ''), decided_at, created_at
		FROM withdrawal_requests `+where+`
		ORDER BY created_at DESC
		LIMIT 100`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.WithdrawalRequest{}
	for rows.Next() {
		var req models.WithdrawalRequest
		if err := rows.Scan(&req.ID, &req.AuthorID, &req.Amount, &req.Status, &req.BankDetails,
			&req.DecidedBy, &req.DecisionNote, &req.DecidedAt, &req.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// GetRevenueAccount handles the revenue enquiry endpoint.
// @Summary Get revenue account
// @Description Retrieve the caller's revenue buckets (balance, pending, withdrawn)
// @Tags revenue
// @Produce json
// @Success 200 {object} models.RevenueAccount
// @Failure 401 {object} ErrorResponse
// @Router /revenue [get]
func (s *WithdrawalService) GetRevenueAccount(w http.ResponseWriter, r *http.Request) {
	authorID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account := models.RevenueAccount{AuthorID: authorID}
	err := s.db.QueryRow(`
		SELECT author_id, balance, pending, withdrawn, updated_at
		FROM revenue_accounts WHERE author_id = $1`, authorID).
		Scan(&account.AuthorID, &account.Balance, &account.Pending, &account.Withdrawn, &account.UpdatedAt)
	if err != nil && err != sql.ErrNoRows {
		SendErrorResponse(w, "Failed to fetch revenue account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}
