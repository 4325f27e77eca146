package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/diaverse/backend/internal/models"
)

// Notifier is the best-effort notification surface the ledger flows depend
// on. Calls happen strictly after commit; failures are logged, never
// propagated into financial state.
type Notifier interface {
	CreateAsync(recipientID int64, notifType, title, message string, payload map[string]any)
}

// NotificationService persists notifications for in-app display and pushes
// delivery jobs to the dispatcher queue. Delivery mechanics (push, email)
// are an external service's job.
type NotificationService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewNotificationService(db *sql.DB, redis *redis.Client) *NotificationService {
	return &NotificationService{db: db, redis: redis}
}

func (s *NotificationService) CreateAsync(recipientID int64, notifType, title, message string, payload map[string]any) {
	var payloadJSON []byte
	if payload != nil {
		payloadJSON, _ = json.Marshal(payload)
	}

	_, err := s.db.Exec(`
		INSERT INTO notifications (recipient_id, type, title, message, payload, read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)`,
		recipientID, notifType, title, message, payloadJSON, time.Now())
	if err != nil {
		log.Printf("[NOTIFY] Failed to store notification for user %d: %v", recipientID, err)
		return
	}

	if s.redis == nil {
		return
	}

	// The dispatcher needs a delivery address; resolve it here so the
	// queue job is self-contained.
	job, _ := json.Marshal(struct {
		models.Notification
		Email string `json:"email,omitempty"`
	}{
		Notification: models.Notification{
			RecipientID: recipientID,
			Type:        notifType,
			Title:       title,
			Message:     message,
			Payload:     string(payloadJSON),
		},
		Email: s.recipientEmail(recipientID),
	})
	if err := s.redis.RPush(context.Background(), "notification_queue", string(job)).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to queue notification for user %d: %v", recipientID, err)
	}
}

// recipientEmail looks the recipient up in the account directory for
// receipt rendering. Empty string when unknown.
func (s *NotificationService) recipientEmail(userID int64) string {
	var email string
	err := s.db.QueryRow(`SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		return ""
	}
	return email
}
