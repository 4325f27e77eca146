package models

import (
	"time"
)

// Content status and access values as published by the catalog service.
const (
	ContentStatusPublished = "PUBLISHED"

	AccessFree = "FREE"
	AccessPaid = "PAID"
)

// Content kinds that can be purchased.
const (
	ContentChapter = "chapter"
	ContentVoice   = "voice"
)

// Content is the catalog view this service consumes: just enough to decide
// whether the item is purchasable and who earns the sale. Moderation and
// CRUD live in the catalog service.
type Content struct {
	ID         int64  `json:"id" db:"id"`
	AuthorID   int64  `json:"author_id" db:"author_id"`
	Kind       string `json:"kind" db:"kind"`
	Status     string `json:"status" db:"status"`
	AccessType string `json:"access_type" db:"access_type"`
	CharCount  int    `json:"char_count" db:"char_count"`
}

// PurchaseRecord marks content as owned by a reader. Unique on
// (reader_id, content_id); never updated or deleted once written.
type PurchaseRecord struct {
	ID        int64     `json:"id" db:"id"`
	ReaderID  int64     `json:"reader_id" db:"reader_id"`
	ContentID int64     `json:"content_id" db:"content_id"`
	PriceDias int64     `json:"price_dias" db:"price_dias"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
