package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

// AccountKind represents the kind of ledger account
type AccountKind string

const (
	AccountKindSavings    AccountKind = "SAVINGS"
	AccountKindInvestment AccountKind = "INVESTMENT"
	AccountKindCredit     AccountKind = "CREDIT"
	AccountKindSystem     AccountKind = "SYSTEM"
)

// IsValid reports whether the account kind is known.
func (k AccountKind) IsValid() bool {
	switch k {
	case AccountKindSavings, AccountKindInvestment, AccountKindCredit, AccountKindSystem:
		return true
	}
	return false
}

// SystemPurpose identifies the role of a system counter-party account
type SystemPurpose string

const (
	PurposeDeposits    SystemPurpose = "DEPOSITS"
	PurposeWithdrawals SystemPurpose = "WITHDRAWALS"
	PurposeFees        SystemPurpose = "FEES"
)

// MetadataKeyPurpose marks a SYSTEM account with its purpose.
const MetadataKeyPurpose = "purpose"

// Account represents a customer or system account.
// Balances are stored separately so hot balance updates do not contend
// with account-metadata reads.
type Account struct {
	ID            uuid.UUID
	AccountNumber string
	OwnerID       uuid.UUID
	Kind          AccountKind
	Currency      money.Currency
	Active        bool
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
}

// IsSystem returns true for engine-owned counter-party accounts
func (a *Account) IsSystem() bool {
	return a.Kind == AccountKindSystem
}

// Validate validates the account
func (a *Account) Validate() error {
	if !ValidAccountNumber(a.AccountNumber) {
		return ErrInvalidAccountNumber
	}
	if !a.Kind.IsValid() {
		return ErrInvalidAccountKind
	}
	if !a.Currency.IsValid() {
		return ErrInvalidCurrency
	}
	if a.OwnerID == uuid.Nil {
		return ErrMissingOwner
	}
	return nil
}

// Balance is the denormalized current position of an account.
// Invariant: Balance.Currency equals the account's currency forever.
type Balance struct {
	AccountID   uuid.UUID
	Currency    money.Currency
	Amount      decimal.Decimal
	LastUpdated time.Time
}

// Validate validates the balance row shape (sign policy is the engine's job;
// SYSTEM accounts legitimately carry negative positions).
func (b *Balance) Validate() error {
	if b.AccountID == uuid.Nil {
		return ErrMissingAccount
	}
	if !b.Currency.IsValid() {
		return ErrInvalidCurrency
	}
	return nil
}

// EntrySide represents whether an entry debits or credits its account
type EntrySide string

const (
	Debit  EntrySide = "DEBIT"
	Credit EntrySide = "CREDIT"
)

// Entry is a single posting within a transaction.
// IMMUTABLE: entries are never updated or deleted once committed.
type Entry struct {
	AccountID uuid.UUID
	Side      EntrySide
	Amount    decimal.Decimal
}

// Validate validates the entry
func (e *Entry) Validate() error {
	if e.Side != Debit && e.Side != Credit {
		return ErrInvalidEntrySide
	}
	if e.AccountID == uuid.Nil {
		return ErrMissingAccount
	}
	if e.Amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}

// IsDebit returns true if this entry is a debit
func (e *Entry) IsDebit() bool {
	return e.Side == Debit
}

// SignedAmount returns the balance delta this entry applies to its account.
// Credits increase a balance, debits decrease it, uniformly for customer and
// SYSTEM accounts (the system DEPOSITS position goes negative as customers
// are credited).
func (e *Entry) SignedAmount() decimal.Decimal {
	if e.Side == Credit {
		return e.Amount
	}
	return e.Amount.Neg()
}

// TransactionKind represents the business kind of a transaction
type TransactionKind string

const (
	KindDeposit    TransactionKind = "DEPOSIT"
	KindWithdrawal TransactionKind = "WITHDRAWAL"
	KindTransfer   TransactionKind = "TRANSFER"
	KindPayment    TransactionKind = "PAYMENT"
	KindFee        TransactionKind = "FEE"
	KindInterest   TransactionKind = "INTEREST"
	KindAdjustment TransactionKind = "ADJUSTMENT"
	KindReversal   TransactionKind = "REVERSAL"
	KindRefund     TransactionKind = "REFUND"
)

// AllTransactionKinds returns every known transaction kind.
func AllTransactionKinds() []TransactionKind {
	return []TransactionKind{
		KindDeposit, KindWithdrawal, KindTransfer, KindPayment, KindFee,
		KindInterest, KindAdjustment, KindReversal, KindRefund,
	}
}

// IsValid reports whether the transaction kind is known.
func (k TransactionKind) IsValid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer, KindPayment, KindFee,
		KindInterest, KindAdjustment, KindReversal, KindRefund:
		return true
	}
	return false
}

// Prefix returns the transaction-id prefix for the kind.
func (k TransactionKind) Prefix() string {
	switch k {
	case KindDeposit:
		return "DEP"
	case KindWithdrawal:
		return "WDR"
	case KindTransfer:
		return "TRF"
	case KindFee:
		return "FEE"
	case KindReversal:
		return "REV"
	default:
		return "TXN"
	}
}

// TransactionStatus represents the lifecycle state of a transaction
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

// IsValid reports whether the status is known.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to the given state.
// Allowed: PENDING→PROCESSING, PENDING→CANCELLED, PROCESSING→COMPLETED,
// PROCESSING→FAILED.
func (s TransactionStatus) CanTransitionTo(to TransactionStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Metadata keys with ledger-level meaning.
const (
	MetadataKeyOriginalTransactionID = "originalTransactionId"
	MetadataKeyReversalReason        = "reversalReason"
)

// Transaction is a journaled, balanced set of postings.
// Immutable once COMPLETED.
type Transaction struct {
	ID            uuid.UUID
	TransactionID string
	Kind          TransactionKind
	InitiatorID   uuid.UUID
	Entries       []Entry
	Amount        decimal.Decimal
	Currency      money.Currency
	FromAccount   *string // account number, where the kind has a source
	ToAccount     *string // account number, where the kind has a destination
	Status        TransactionStatus
	Description   string
	Reference     *string
	Metadata      map[string]any
	FailureReason *string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the journal invariants on the transaction:
// a known kind and currency, a well-formed transaction id, at least two
// entries, per-entry validity, balanced debits and credits, and a declared
// amount equal to the posted totals.
func (t *Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return ErrInvalidTransactionKind
	}
	if !t.Status.IsValid() {
		return ErrInvalidTransactionStatus
	}
	if !t.Currency.IsValid() {
		return ErrInvalidCurrency
	}
	if !ValidTransactionID(t.TransactionID) {
		return ErrInvalidTransactionID
	}
	if len(t.Entries) < 2 {
		return ErrTooFewEntries
	}

	debits := decimal.Zero
	credits := decimal.Zero
	for i := range t.Entries {
		if err := t.Entries[i].Validate(); err != nil {
			return err
		}
		if t.Entries[i].IsDebit() {
			debits = debits.Add(t.Entries[i].Amount)
		} else {
			credits = credits.Add(t.Entries[i].Amount)
		}
	}

	if !debits.Equal(credits) {
		return ErrUnbalancedEntries
	}
	if !t.Amount.Equal(debits) {
		return ErrDeclaredAmountMismatch
	}

	return nil
}

// OriginalTransactionID returns the reversed transaction id, if this is a
// reversal.
func (t *Transaction) OriginalTransactionID() (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	id, ok := t.Metadata[MetadataKeyOriginalTransactionID].(string)
	return id, ok && id != ""
}
