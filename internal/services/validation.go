package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErr.(validator.ValidationErrors) {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendBusinessError maps a ledger business error to its HTTP status.
// ErrPricingUnavailable is the one operational error in the taxonomy and
// maps to a 500; everything else is the caller's problem.
func SendBusinessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientBalance):
		SendErrorResponse(w, err.Error(), http.StatusPaymentRequired, nil)
	case errors.Is(err, ErrAlreadyPurchased), errors.Is(err, ErrPendingRequestExists),
		errors.Is(err, ErrAlreadyDecided), errors.Is(err, ErrTopupAlreadyCredited):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, ErrAmountTooSmall), errors.Is(err, ErrInvalidMeasure):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrContentNotPurchasable), errors.Is(err, ErrChapterNotPublished):
		SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, ErrTopupNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrPricingUnavailable):
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
	default:
		SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}

// UserIDFromContext extracts the authenticated user id placed in the
// request context by the auth middleware.
func UserIDFromContext(r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value("userID").(int64)
	return userID, ok && userID > 0
}
