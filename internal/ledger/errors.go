package ledger

import "errors"

// Sentinel errors shared by the repository implementations. The service
// layer maps these onto AppError codes before they leave the package.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate key")
	ErrStateConflict = errors.New("status changed concurrently")

	// ErrSerialization marks a commit aborted by the store's isolation
	// machinery. The engine retries these with backoff.
	ErrSerialization = errors.New("serialization conflict")

	ErrNoTransaction = errors.New("no transaction in context")
	ErrTxInProgress  = errors.New("transaction already in progress")
)

// Model validation errors.
var (
	ErrInvalidAccountNumber     = errors.New("invalid account number")
	ErrInvalidAccountKind       = errors.New("invalid account kind")
	ErrInvalidCurrency          = errors.New("invalid currency")
	ErrMissingOwner             = errors.New("account owner is required")
	ErrMissingAccount           = errors.New("account id is required")
	ErrInvalidEntrySide         = errors.New("entry side must be DEBIT or CREDIT")
	ErrNonPositiveAmount        = errors.New("amount must be positive")
	ErrInvalidTransactionKind   = errors.New("invalid transaction kind")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrInvalidTransactionID     = errors.New("invalid transaction id")
	ErrTooFewEntries            = errors.New("transaction requires at least two entries")
	ErrUnbalancedEntries        = errors.New("entries do not balance")
	ErrDeclaredAmountMismatch   = errors.New("declared amount does not match entry totals")
)
