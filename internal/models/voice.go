package models

import (
	"time"
)

// Voice order statuses. pending orders are awaiting the synthesis worker.
const (
	VoiceOrderPending = "PENDING"
	VoiceOrderReady   = "READY"
	VoiceOrderFailed  = "FAILED"
)

// VoiceOrder tracks AI narration ordered for a chapter in a specific voice.
// One row per (chapter, voice) pair; re-ordering an existing pair is a no-op.
type VoiceOrder struct {
	ID                 int64     `json:"id" db:"id"`
	ChapterID          int64     `json:"chapter_id" db:"chapter_id"`
	VoiceID            int64     `json:"voice_id" db:"voice_id"`
	Status             string    `json:"status" db:"status"`
	GenerationCostDias int64     `json:"generation_cost_dias" db:"generation_cost_dias"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// SynthesisJob is the payload pushed to the voice synthesis queue after a
// voice order commits. The synthesis worker is an external service.
type SynthesisJob struct {
	OrderID   int64     `json:"order_id"`
	ChapterID int64     `json:"chapter_id"`
	VoiceID   int64     `json:"voice_id"`
	QueuedAt  time.Time `json:"queued_at"`
}
