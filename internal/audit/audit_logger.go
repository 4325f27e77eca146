package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is one structured audit record. Every dia movement and every
// post-commit side-effect failure produces one.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	ReferenceID string    `json:"reference_id"`
	UserID      int64     `json:"user_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	Details     any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogMovement records a committed dia movement.
func (a *Logger) LogMovement(referenceID string, userID int64, amount int64, kind string) {
	a.log(Event{
		Timestamp:   time.Now(),
		EventType:   "MOVEMENT",
		ReferenceID: referenceID,
		UserID:      userID,
		Amount:      amount,
		Status:      "SUCCESS",
		Details:     map[string]string{"kind": kind},
	})
}

// LogError records a failed operation or a post-commit side-effect failure.
// Post-commit failures never reverse committed money.
func (a *Logger) LogError(referenceID string, userID int64, err error) {
	a.log(Event{
		Timestamp:   time.Now(),
		EventType:   "ERROR",
		ReferenceID: referenceID,
		UserID:      userID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	})
}

// LogDecision records a moderator decision on a withdrawal request.
func (a *Logger) LogDecision(requestID string, moderatorID int64, amount int64, decision string) {
	a.log(Event{
		Timestamp:   time.Now(),
		EventType:   "WITHDRAWAL_DECISION",
		ReferenceID: requestID,
		UserID:      moderatorID,
		Amount:      amount,
		Status:      decision,
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
