package services

import "errors"

// Business errors surfaced by the ledger operations. Every precondition is
// checked before any mutation, so any of these guarantees zero side effects
// and is safe to retry.
var (
	ErrInsufficientFunds    = errors.New("insufficient wallet balance")
	ErrInsufficientBalance  = errors.New("not enough revenue balance")
	ErrAlreadyPurchased     = errors.New("content already purchased")
	ErrAmountTooSmall       = errors.New("withdrawal amount below minimum")
	ErrPendingRequestExists = errors.New("a pending withdrawal request already exists")
	ErrAlreadyDecided       = errors.New("withdrawal request already decided")
	ErrContentNotPurchasable = errors.New("content is not purchasable")
	ErrChapterNotPublished  = errors.New("only published chapters can order voices")
	ErrInvalidMeasure       = errors.New("size measure must be positive")
	ErrTopupNotFound        = errors.New("topup reference not found or expired")
	ErrTopupAlreadyCredited = errors.New("topup reference already credited")
)

// ErrPricingUnavailable is an operational error: the pricing table is empty
// and needs a configuration fix. Handlers map it to a 5xx, never a 4xx.
var ErrPricingUnavailable = errors.New("pricing rules unavailable")
