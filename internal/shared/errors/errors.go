package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with a stable code, a
// human-readable message, and an optional machine-readable details payload.
type AppError struct {
	Code    string         // Stable error code for clients
	Message string         // Human-readable message
	Details map[string]any // Machine-readable payload (amounts, ids)
	Err     error          // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail returns the error with an extra details entry set.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Error codes surfaced by the ledger core and its perimeter.
const (
	ErrCodeBadRequest             = "BAD_REQUEST"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeInactiveAccount        = "INACTIVE_ACCOUNT"
	ErrCodeCurrencyMismatch       = "CURRENCY_MISMATCH"
	ErrCodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	ErrCodeConflict               = "CONFLICT"
	ErrCodeIllegalStateTransition = "ILLEGAL_STATE_TRANSITION"
	ErrCodeAlreadyReversed        = "ALREADY_REVERSED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeConcurrencyExhausted   = "CONCURRENCY_EXHAUSTED"
	ErrCodeStoreUnavailable       = "STORE_UNAVAILABLE"
	ErrCodeCancelled              = "CANCELLED"
	ErrCodeDeadlineExceeded       = "DEADLINE_EXCEEDED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InactiveAccount creates an inactive account error
func InactiveAccount(accountNumber string) *AppError {
	return New(ErrCodeInactiveAccount, fmt.Sprintf("account %s is closed", accountNumber)).
		WithDetail("accountNumber", accountNumber)
}

// CurrencyMismatch creates a currency mismatch error
func CurrencyMismatch(declared, actual string) *AppError {
	return New(ErrCodeCurrencyMismatch, fmt.Sprintf("declared currency %s does not match account currency %s", declared, actual)).
		WithDetail("declared", declared).
		WithDetail("actual", actual)
}

// InsufficientFunds creates an insufficient funds error carrying the
// available and requested amounts.
func InsufficientFunds(available, requested string) *AppError {
	return New(ErrCodeInsufficientFunds, fmt.Sprintf("insufficient funds: available %s, requested %s", available, requested)).
		WithDetail("available", available).
		WithDetail("requested", requested)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// IllegalStateTransition creates a state transition error
func IllegalStateTransition(from, to string) *AppError {
	return New(ErrCodeIllegalStateTransition, fmt.Sprintf("cannot transition transaction from %s to %s", from, to)).
		WithDetail("from", from).
		WithDetail("to", to)
}

// AlreadyReversed creates an already reversed error
func AlreadyReversed(transactionID string) *AppError {
	return New(ErrCodeAlreadyReversed, fmt.Sprintf("transaction %s has already been reversed", transactionID)).
		WithDetail("originalTransactionId", transactionID)
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// ConcurrencyExhausted creates an error for an exhausted retry budget
func ConcurrencyExhausted(attempts int, err error) *AppError {
	e := Wrap(err, ErrCodeConcurrencyExhausted, fmt.Sprintf("commit aborted after %d attempts", attempts))
	return e.WithDetail("attempts", attempts)
}

// StoreUnavailable creates a store unavailable error
func StoreUnavailable(err error) *AppError {
	return Wrap(err, ErrCodeStoreUnavailable, "underlying store unavailable")
}

// Cancelled creates a cancellation error
func Cancelled(err error) *AppError {
	return Wrap(err, ErrCodeCancelled, "operation cancelled")
}

// DeadlineExceeded creates a deadline exceeded error
func DeadlineExceeded(err error) *AppError {
	return Wrap(err, ErrCodeDeadlineExceeded, "operation deadline exceeded")
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts an AppError from an error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
