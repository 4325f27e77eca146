package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/skip2/go-qrcode"

	"github.com/diaverse/backend/internal/audit"
	"github.com/diaverse/backend/internal/models"
)

const topupTTL = 15 * time.Minute

// TopupService is the intake side of fiat top-ups. Payment itself happens on
// an external gateway; this service issues the QR payload the gateway app
// scans and, once the gateway confirms, credits the wallet exactly once.
type TopupService struct {
	db        *sql.DB
	redis     *redis.Client
	audit     *audit.Logger
	validator *ValidationHelper
}

type topupIntent struct {
	Reference  string `json:"reference"`
	UserID     int64  `json:"userId"`
	AmountDias int64  `json:"amountDias"`
	IssuedAt   int64  `json:"issuedAt"`
}

func NewTopupService(db *sql.DB, redis *redis.Client) *TopupService {
	return &TopupService{
		db:        db,
		redis:     redis,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// GenerateTopupQR creates a short-lived top-up intent and renders it as a
// QR code for the external payment app. Returns the reference and a
// base64-encoded PNG.
func (s *TopupService) GenerateTopupQR(ctx context.Context, userID, amountDias int64) (string, string, error) {
	intent := topupIntent{
		Reference:  uuid.NewString(),
		UserID:     userID,
		AmountDias: amountDias,
		IssuedAt:   time.Now().Unix(),
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		return "", "", err
	}

	key := fmt.Sprintf("topup:%s", intent.Reference)
	if err := s.redis.Set(ctx, key, string(payload), topupTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return intent.Reference, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ConfirmTopup credits the wallet for a gateway-confirmed top-up. The unique
// reference column makes the credit idempotent: a replayed confirmation
// fails without touching any balance.
func (s *TopupService) ConfirmTopup(ctx context.Context, reference string) (int64, error) {
	key := fmt.Sprintf("topup:%s", reference)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, ErrTopupNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load topup intent: %w", err)
	}

	var intent topupIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return 0, fmt.Errorf("decode topup intent: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin topup: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO topups (user_id, amount_dias, reference, created_at)
		VALUES ($1, $2, $3, NOW())`, intent.UserID, intent.AmountDias, reference)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, ErrTopupAlreadyCredited
		}
		return 0, err
	}

	wallet, err := lockWallet(tx, intent.UserID)
	if err != nil {
		return 0, err
	}
	wallet = CreditWallet(wallet, intent.AmountDias)
	if err := saveWallet(tx, wallet); err != nil {
		return 0, err
	}
	if err := appendLedgerEntry(tx, intent.UserID, models.AccountWallet, intent.AmountDias, models.EntryTopup, reference); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit topup: %w", err)
	}

	s.audit.LogMovement(reference, intent.UserID, intent.AmountDias, models.EntryTopup)
	s.redis.Del(ctx, key)

	return wallet.Balance, nil
}

// CreateTopupQR handles the top-up QR endpoint.
// @Summary Generate top-up QR code
// @Description Create a short-lived top-up intent for the external payment gateway
// @Tags topups
// @Accept json
// @Produce json
// @Param topup body object{amountDias=int} true "Amount of dias to buy"
// @Success 201 {object} object{reference=string,qrImage=string}
// @Failure 400 {object} ErrorResponse
// @Router /topups/qr [post]
func (s *TopupService) CreateTopupQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		AmountDias int64 `json:"amountDias" validate:"required,gt=0,lte=1000000"`
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

	reference, qrImage, err := s.GenerateTopupQR(r.Context(), userID, req.AmountDias)
	if err != nil {
		log.Printf("[TOPUP] QR generation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to generate top-up code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"reference": reference,
		"qrImage":   qrImage,
	})
}

// ConfirmTopupRequest handles the gateway confirmation callback.
// @Summary Confirm top-up
// @Description Credit a wallet for a gateway-confirmed top-up (idempotent on reference)
// @Tags topups
// @Accept json
// @Produce json
// @Param confirmation body object{reference=string} true "Top-up reference"
// @Success 200 {object} object{newBalance=int64}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /topups/confirm [post]
func (s *TopupService) ConfirmTopupRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Reference string `json:"reference" validate:"required,uuid4"`
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	newBalance, err := s.ConfirmTopup(r.Context(), req.Reference)
	if err != nil {
		log.Printf("[TOPUP] Confirmation failed for reference %s: %v", req.Reference, err)
		SendBusinessError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"newBalance": newBalance})
}
