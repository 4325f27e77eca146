package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/diaverse/backend/internal/audit"
	"github.com/diaverse/backend/internal/models"
)

const synthesisQueueKey = "voice_synthesis_queue"

// VoiceOrderService lets an author buy AI narration for their own chapters.
// Ordering debits the author's revenue balance by the summed generation cost
// and enqueues one synthesis job per voice for the external worker. An
// already-ordered (chapter, voice) pair is skipped silently.
type VoiceOrderService struct {
	db        *sql.DB
	redis     *redis.Client
	pricing   *PricingService
	notifier  Notifier
	audit     *audit.Logger
	validator *ValidationHelper
}

type VoiceOrderResult struct {
	ChapterID     int64   `json:"chapter_id"`
	OrderedVoices []int64 `json:"ordered_voices"`
	SkippedVoices []int64 `json:"skipped_voices"`
	TotalCost     int64   `json:"total_cost"`
	BalanceAfter  int64   `json:"balance_after"`
}

func NewVoiceOrderService(db *sql.DB, redis *redis.Client, pricing *PricingService, notifier Notifier) *VoiceOrderService {
	return &VoiceOrderService{
		db:        db,
		redis:     redis,
		pricing:   pricing,
		notifier:  notifier,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// OrderVoices orders narration of one chapter in the requested voices.
// Costs come from the generation-cost pricing table, distinct from the sale
// price readers later pay for the audio.
func (s *VoiceOrderService) OrderVoices(authorID, chapterID int64, voiceIDs []int64) (*VoiceOrderResult, error) {
	chapter, err := s.fetchChapter(chapterID)
	if err != nil {
		return nil, err
	}
	if chapter.Status != models.ContentStatusPublished || chapter.AuthorID != authorID {
		return nil, ErrChapterNotPublished
	}

	existing, err := s.existingVoices(chapterID)
	if err != nil {
		return nil, err
	}

	result := &VoiceOrderResult{ChapterID: chapterID}
	newVoices := []int64{}
	for _, voiceID := range voiceIDs {
		if existing[voiceID] {
			result.SkippedVoices = append(result.SkippedVoices, voiceID)
			continue
		}
		newVoices = append(newVoices, voiceID)
	}

	costPerVoice, err := s.pricing.GetGenerationCost(chapter.CharCount)
	if err != nil {
		return nil, err
	}
	totalCost := costPerVoice * int64(len(newVoices))
	result.TotalCost = totalCost
	result.OrderedVoices = newVoices

	if len(newVoices) == 0 {
		// Everything requested already exists; nothing to charge.
		account, err := s.currentRevenue(authorID)
		if err != nil {
			return nil, err
		}
		result.BalanceAfter = account.Balance
		return result, nil
	}

	referenceID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin voice order: %w", err)
	}
	defer tx.Rollback()

	account, err := lockRevenueAccount(tx, authorID)
	if err != nil {
		return nil, err
	}

	account, err = DebitRevenue(account, totalCost)
	if err != nil {
		return nil, err
	}
	if err := saveRevenueAccount(tx, account); err != nil {
		return nil, err
	}
	if err := appendLedgerEntry(tx, authorID, models.AccountRevenue, -totalCost, models.EntryVoiceGeneration, referenceID); err != nil {
		return nil, err
	}

	orderIDs := make(map[int64]int64, len(newVoices))
	for _, voiceID := range newVoices {
		var orderID int64
		err := tx.QueryRow(`
			INSERT INTO voice_orders (chapter_id, voice_id, status, generation_cost_dias, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			RETURNING id`, chapterID, voiceID, models.VoiceOrderPending, costPerVoice).Scan(&orderID)
		if err != nil {
			return nil, err
		}
		orderIDs[voiceID] = orderID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit voice order: %w", err)
	}

	s.audit.LogMovement(referenceID, authorID, -totalCost, models.EntryVoiceGeneration)
	result.BalanceAfter = account.Balance

	// Enqueue after commit. A failed enqueue is audited and retried
	// out-of-band; it never reverses the committed charge.
	for _, voiceID := range newVoices {
		if err := s.enqueueSynthesis(orderIDs[voiceID], chapterID, voiceID); err != nil {
			log.Printf("[VOICE] Failed to enqueue synthesis for chapter %d voice %d: %v", chapterID, voiceID, err)
			s.audit.LogError(referenceID, authorID, err)
		}
	}

	return result, nil
}

func (s *VoiceOrderService) enqueueSynthesis(orderID, chapterID, voiceID int64) error {
	job, err := json.Marshal(models.SynthesisJob{
		OrderID:   orderID,
		ChapterID: chapterID,
		VoiceID:   voiceID,
		QueuedAt:  time.Now(),
	})
	if err != nil {
		return err
	}
	return s.redis.RPush(context.Background(), synthesisQueueKey, string(job)).Err()
}

// CompleteOrder records the synthesis worker's outcome for one order and
// notifies the chapter's author. Only pending orders can be completed.
func (s *VoiceOrderService) CompleteOrder(orderID int64, success bool) error {
	newStatus := models.VoiceOrderReady
	if !success {
		newStatus = models.VoiceOrderFailed
	}

	var chapterID, voiceID int64
	err := s.db.QueryRow(`
		UPDATE voice_orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING chapter_id, voice_id`, newStatus, orderID, models.VoiceOrderPending).
		Scan(&chapterID, &voiceID)
	if err == sql.ErrNoRows {
		return ErrAlreadyDecided
	}
	if err != nil {
		return fmt.Errorf("complete voice order: %w", err)
	}

	var authorID int64
	if err := s.db.QueryRow(`SELECT author_id FROM contents WHERE id = $1`, chapterID).Scan(&authorID); err != nil {
		log.Printf("[VOICE] Order %d completed but author lookup failed: %v", orderID, err)
		return nil
	}

	notifType, title, message := models.NotifyVoiceReady, "Voice narration ready",
		fmt.Sprintf("Narration for your chapter %d is ready for readers.", chapterID)
	if !success {
		notifType, title, message = models.NotifyVoiceFailed, "Voice narration failed",
			fmt.Sprintf("Narration for your chapter %d could not be generated.", chapterID)
	}
	go s.notifier.CreateAsync(authorID, notifType, title, message,
		map[string]any{"chapter_id": chapterID, "voice_id": voiceID, "order_id": orderID})

	return nil
}

func (s *VoiceOrderService) fetchChapter(chapterID int64) (*models.Content, error) {
	var c models.Content
	err := s.db.QueryRow(`
		SELECT id, author_id, kind, status, access_type, char_count
		FROM contents WHERE id = $1 AND kind = $2`, chapterID, models.ContentChapter).
		Scan(&c.ID, &c.AuthorID, &c.Kind, &c.Status, &c.AccessType, &c.CharCount)
	if err == sql.ErrNoRows {
		return nil, ErrChapterNotPublished
	}
	if err != nil {
		return nil, fmt.Errorf("fetch chapter: %w", err)
	}
	return &c, nil
}

func (s *VoiceOrderService) existingVoices(chapterID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(`SELECT voice_id FROM voice_orders WHERE chapter_id = $1`, chapterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := map[int64]bool{}
	for rows.Next() {
		var voiceID int64
		if err := rows.Scan(&voiceID); err != nil {
			return nil, err
		}
		existing[voiceID] = true
	}
	return existing, rows.Err()
}

func (s *VoiceOrderService) currentRevenue(authorID int64) (models.RevenueAccount, error) {
	account := models.RevenueAccount{AuthorID: authorID}
	err := s.db.QueryRow(`
		SELECT balance, pending, withdrawn FROM revenue_accounts WHERE author_id = $1`, authorID).
		Scan(&account.Balance, &account.Pending, &account.Withdrawn)
	if err != nil && err != sql.ErrNoRows {
		return account, err
	}
	return account, nil
}

// CreateVoiceOrder handles the voice ordering endpoint.
// @Summary Order voice narration
// @Description Order AI narration of an own published chapter in one or more voices
// @Tags voice-orders
// @Accept json
// @Produce json
// @Param order body object{chapterId=int,voiceIds=[]int} true "Chapter and voices"
// @Success 201 {object} VoiceOrderResult
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /voice-orders [post]
func (s *VoiceOrderService) CreateVoiceOrder(w http.ResponseWriter, r *http.Request) {
	authorID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ChapterID int64   `json:"chapterId" validate:"required,gt=0"`
		VoiceIDs  []int64 `json:"voiceIds" validate:"required,min=1,max=20,dive,gt=0"`
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

	result, err := s.OrderVoices(authorID, req.ChapterID, req.VoiceIDs)
	if err != nil {
		log.Printf("[VOICE] Order failed for author %d, chapter %d: %v", authorID, req.ChapterID, err)
		SendBusinessError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// CompleteVoiceOrder handles the synthesis worker callback.
// @Summary Complete voice order
// @Description Record the synthesis outcome for a pending voice order
// @Tags voice-orders
// @Accept json
// @Produce json
// @Param completion body object{orderId=int,success=bool} true "Synthesis outcome"
// @Success 200 {object} object{status=string}
// @Failure 409 {object} ErrorResponse
// @Router /voice-orders/complete [put]
func (s *VoiceOrderService) CompleteVoiceOrder(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		OrderID int64 `json:"orderId" validate:"required,gt=0"`
		Success bool  `json:"success"`
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

	if err := s.CompleteOrder(req.OrderID, req.Success); err != nil {
		log.Printf("[VOICE] Completion failed for order %d: %v", req.OrderID, err)
		SendBusinessError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
