package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows transaction listings. Nil fields are ignored.
type TransactionFilter struct {
	Kind          *TransactionKind
	Status        *TransactionStatus
	From          *time.Time
	To            *time.Time
	AccountNumber *string
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
}

// Page controls pagination and sort order for listings.
type Page struct {
	Page     int
	Limit    int
	SortBy   string // createdAt or amount
	SortDesc bool
}

// DefaultPage returns the default paging: newest first, 20 per page.
func DefaultPage() Page {
	return Page{Page: 1, Limit: 20, SortBy: "createdAt", SortDesc: true}
}

// Normalize clamps the page into valid bounds and fills defaults.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.SortBy != "amount" {
		p.SortBy = "createdAt"
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Window bounds an aggregation in time. Nil ends are unbounded.
type Window struct {
	From *time.Time
	To   *time.Time
}

// CurrencySummary totals completed transactions per currency.
type CurrencySummary struct {
	Currency string
	Count    int64
	Total    decimal.Decimal
}

// KindStat totals completed transactions per kind and currency.
type KindStat struct {
	Kind     TransactionKind
	Currency string
	Count    int64
	Total    decimal.Decimal
}

// MonthlyStat totals completed transactions per calendar month and kind.
type MonthlyStat struct {
	Year  int
	Month int
	Kind  TransactionKind
	Count int64
	Total decimal.Decimal
}

// UserStats aggregates a user's completed transactions across all of
// their accounts.
type UserStats struct {
	Summary      []CurrencySummary
	ByKind       []KindStat
	MonthlyTrend []MonthlyStat
}

// FlowDirection classifies a transaction relative to one account.
type FlowDirection string

const (
	FlowIncoming FlowDirection = "INCOMING"
	FlowOutgoing FlowDirection = "OUTGOING"
)

// NetFlow is the incoming/outgoing totals for one account.
type NetFlow struct {
	Currency string
	Incoming decimal.Decimal
	Outgoing decimal.Decimal
	Net      decimal.Decimal
}

// DirectionKindStat totals completed transactions per flow direction and kind.
type DirectionKindStat struct {
	Direction FlowDirection
	Kind      TransactionKind
	Count     int64
	Total     decimal.Decimal
}

// DailyStat totals completed transactions per calendar day and direction.
type DailyStat struct {
	Date      string // YYYY-MM-DD
	Direction FlowDirection
	Count     int64
	Total     decimal.Decimal
}

// AccountStats aggregates completed transactions touching one account.
type AccountStats struct {
	NetFlow    NetFlow
	ByKind     []DirectionKindStat
	DailyTrend []DailyStat
}

// Repository is the persistence port for the ledger. Implementations must
// provide atomic commit scopes via BeginTx/CommitTx/RollbackTx: the returned
// context carries the open transaction and every repository call made with
// it joins that transaction. Concurrency-aborted commits surface
// ErrSerialization so the engine can retry.
type Repository interface {
	// Accounts
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Account, error)
	// SetAccountActive flips the active flag with an optimistic version check.
	SetAccountActive(ctx context.Context, id uuid.UUID, active bool, version int64) error
	// GetOrCreateSystemAccount inserts the SYSTEM account for the given
	// purpose and currency if absent, then returns the winning row. The
	// bool reports whether this call created it.
	GetOrCreateSystemAccount(ctx context.Context, account *Account, purpose SystemPurpose) (*Account, bool, error)

	// Balances
	InitBalance(ctx context.Context, balance *Balance) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error)
	// GetBalanceForUpdate reads the balance under an exclusive row lock
	// held until the ambient transaction commits or rolls back.
	GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID) (*Balance, error)
	UpdateBalance(ctx context.Context, balance *Balance) error

	// Journal
	CreateTransaction(ctx context.Context, tx *Transaction) error
	// UpdateTransactionStatus performs a guarded transition: the row must
	// currently be in the from status or ErrStateConflict is returned.
	UpdateTransactionStatus(ctx context.Context, transactionID string, from, to TransactionStatus, processedAt *time.Time, failureReason *string) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetTransactionByTxID(ctx context.Context, transactionID string) (*Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID, filter TransactionFilter, page Page) ([]*Transaction, int64, error)
	ListTransactionsByAccount(ctx context.Context, accountNumber string, filter TransactionFilter, page Page) ([]*Transaction, int64, error)
	// FindCompletedReversalOf returns the COMPLETED reversal of the given
	// transaction id, or ErrNotFound.
	FindCompletedReversalOf(ctx context.Context, originalTransactionID string) (*Transaction, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Transaction, error)

	// Aggregations over COMPLETED transactions
	AggregateUserStats(ctx context.Context, userID uuid.UUID, window Window) (*UserStats, error)
	AggregateAccountStats(ctx context.Context, accountNumber string, window Window) (*AccountStats, error)

	// Commit scope
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
