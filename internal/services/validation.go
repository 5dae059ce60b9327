package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxCommentLength is the longest transfer comment kept, in characters.
const MaxCommentLength = 256

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Status  string            `json:"status,omitempty"`  // Ledger status code
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
	writeError(w, ErrorResponse{Error: message}, statusCode, validationErr)
}

// SendLedgerError sends a JSON error response carrying the ledger status of err.
func SendLedgerError(w http.ResponseWriter, err error, statusCode int) {
	writeError(w, ErrorResponse{Error: err.Error(), Status: string(StatusOf(err))}, statusCode, nil)
}

func writeError(w http.ResponseWriter, errorResp ErrorResponse, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// ParseAmount converts a user supplied amount to minor units: it is rounded
// to 3 decimals, must then be strictly positive, and is truncated to an
// integer.
func ParseAmount(raw string) (int64, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	amount = amount.Round(3)
	if !amount.IsPositive() || amount.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrInvalidAmount
	}
	minor := amount.IntPart()
	if minor <= 0 {
		return 0, ErrInvalidAmount
	}
	return minor, nil
}

// TruncateComment shortens comment to MaxCommentLength characters.
func TruncateComment(comment string) string {
	runes := []rune(comment)
	if len(runes) <= MaxCommentLength {
		return comment
	}
	return string(runes[:MaxCommentLength])
}
