package models

import "time"

// User is the account directory view consumed for receipts and
// notifications. Identity management lives in the auth service.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	PenName   string    `json:"pen_name" db:"pen_name"`
	IsAuthor  bool      `json:"is_author" db:"is_author"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
