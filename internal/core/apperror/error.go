// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidQuantity    = "INVALID_QUANTITY"
	CodeCountMismatch      = "COUNT_MISMATCH"
	CodeMissingPaymentType = "MISSING_PAYMENT_TYPE"
	CodeMissingProof       = "MISSING_PROOF"
	CodePriceRestriction   = "PRICE_RESTRICTION"

	// Business rule violations (422)
	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeInvariantViolation     = "INVARIANT_VIOLATION"
	CodePaidExceedsTotal       = "PAID_EXCEEDS_TOTAL"
	CodePaidAmountNegative     = "PAID_AMOUNT_NEGATIVE"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict         = "CONFLICT"
	CodeDuplicate        = "DUPLICATE_ENTRY"
	CodeIdempotency      = "IDEMPOTENCY_CONFLICT"
	CodeAlreadyDeducted  = "ALREADY_DEDUCTED"
	CodeAlreadyConverted = "ALREADY_CONVERTED"
	CodeDocumentLocked   = "DOCUMENT_LOCKED"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// NewInvalidQuantity reports a non-positive line quantity.
func NewInvalidQuantity(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewCountMismatch reports a batch/serial sub-ledger that does not match the line quantity.
func NewCountMismatch(trackingType string, expected, actual any) *AppError {
	return &AppError{
		Code:       CodeCountMismatch,
		Message:    fmt.Sprintf("%s count does not match line quantity", trackingType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"tracking_type": trackingType, "expected": expected, "actual": actual},
	}
}

// NewMissingPaymentType is returned for a positive payment without a payment type.
func NewMissingPaymentType() *AppError {
	return &AppError{
		Code:       CodeMissingPaymentType,
		Message:    "Payment type is required when amount is greater than zero",
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewMissingProof is returned when a status requiring proof is set without notes.
func NewMissingProof(status string) *AppError {
	return &AppError{
		Code:       CodeMissingProof,
		Message:    fmt.Sprintf("Notes are required to set status %s", status),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"status": status},
	}
}

// NewPriceRestriction is returned when a line price breaks an MRP/MSP limit.
func NewPriceRestriction(message string) *AppError {
	return &AppError{
		Code:       CodePriceRestriction,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvariantViolation creates a ledger consistency error (422).
// The enclosing transaction must be rolled back.
func NewInvariantViolation(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidTransition creates a status transition error (422)
func NewInvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("Cannot change status from %s to %s", from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"from": from, "to": to},
	}
}

// NewAlreadyDeducted is returned when inventory of a document was already deducted.
func NewAlreadyDeducted(documentID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyDeducted,
		Message:    "Inventory already deducted for this document",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"document_id": documentID},
	}
}

// NewAlreadyConverted is returned when a source document already produced a sale.
func NewAlreadyConverted(sourceID, saleID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyConverted,
		Message:    "Document has already been converted",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"source_id": sourceID, "sale_id": saleID},
	}
}

// NewDocumentLocked is returned when another instance holds the document lock.
func NewDocumentLocked(documentID any) *AppError {
	return &AppError{
		Code:       CodeDocumentLocked,
		Message:    "Document is being modified by another request",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"document_id": documentID},
	}
}

// NewDatabase wraps a storage failure (500)
func NewDatabase(op string, err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    "Database operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return Is(err, CodeConcurrentModification)
}
