package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
)

// LedgerRepository implements ledger.Repository on PostgreSQL. Commit
// scopes run at SERIALIZABLE isolation; aborted commits surface as
// ledger.ErrSerialization so the engine can retry them.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// mapPgError converts driver errors to the repository sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ledger.ErrDuplicate
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ledger.ErrSerialization
		}
	}
	return err
}

// Account operations

const accountColumns = `id, account_number, owner_id, kind, currency, active, metadata, created_at, updated_at, version`

// CreateAccount creates a new account in the database
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	metadataJSON, err := json.Marshal(account.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO accounts (id, account_number, owner_id, kind, currency, active, metadata, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	q := r.getQueryer(ctx)
	_, err = q.Exec(ctx, query,
		account.ID,
		account.AccountNumber,
		account.OwnerID,
		string(account.Kind),
		string(account.Currency),
		account.Active,
		metadataJSON,
		account.CreatedAt,
		account.UpdatedAt,
		account.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapPgError(err))
	}

	return nil
}

// GetAccount retrieves an account by ID
func (r *LedgerRepository) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	q := r.getQueryer(ctx)
	return scanAccount(q.QueryRow(ctx, query, id))
}

// GetAccountByNumber retrieves an account by its public account number
func (r *LedgerRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	q := r.getQueryer(ctx)
	return scanAccount(q.QueryRow(ctx, query, accountNumber))
}

// ListAccountsByOwner retrieves all accounts owned by a user
func (r *LedgerRepository) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at ASC`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", mapPgError(err))
	}
	defer rows.Close()

	var accounts []*ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", mapPgError(err))
	}

	return accounts, nil
}

// SetAccountActive flips the active flag using an optimistic version check.
// Returns ledger.ErrStateConflict when the version has moved.
func (r *LedgerRepository) SetAccountActive(ctx context.Context, id uuid.UUID, active bool, version int64) error {
	query := `
		UPDATE accounts
		SET active = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3
	`

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, query, id, active, version)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAccount(ctx, id); err != nil {
			return err
		}
		return ledger.ErrStateConflict
	}
	return nil
}

// GetOrCreateSystemAccount atomically inserts the SYSTEM account for a
// purpose and currency, or returns the existing one. A partial unique
// index on (currency, metadata->>'purpose') for SYSTEM rows makes the
// INSERT...ON CONFLICT DO NOTHING race-free.
func (r *LedgerRepository) GetOrCreateSystemAccount(ctx context.Context, account *ledger.Account, purpose ledger.SystemPurpose) (*ledger.Account, bool, error) {
	if err := account.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid account: %w", err)
	}

	metadataJSON, err := json.Marshal(account.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	insertQuery := `
		INSERT INTO accounts (id, account_number, owner_id, kind, currency, active, metadata, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, insertQuery,
		account.ID,
		account.AccountNumber,
		account.OwnerID,
		string(account.Kind),
		string(account.Currency),
		account.Active,
		metadataJSON,
		account.CreatedAt,
		account.UpdatedAt,
		account.Version,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert system account: %w", mapPgError(err))
	}
	created := tag.RowsAffected() == 1

	// Always SELECT to get the canonical row (ours or existing).
	selectQuery := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE kind = 'SYSTEM' AND currency = $1 AND metadata->>'purpose' = $2
	`
	existing, err := scanAccount(q.QueryRow(ctx, selectQuery, string(account.Currency), string(purpose)))
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var account ledger.Account
	var metadataJSON []byte

	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.OwnerID,
		&account.Kind,
		&account.Currency,
		&account.Active,
		&metadataJSON,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		return nil, mapPgError(err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &account.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &account, nil
}

// Balance operations

// InitBalance creates the zero-row for a freshly opened account
func (r *LedgerRepository) InitBalance(ctx context.Context, balance *ledger.Balance) error {
	if err := balance.Validate(); err != nil {
		return fmt.Errorf("invalid balance: %w", err)
	}

	query := `
		INSERT INTO balances (account_id, currency, amount, last_updated)
		VALUES ($1, $2, $3, $4)
	`

	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, query,
		balance.AccountID,
		string(balance.Currency),
		balance.Amount.String(),
		balance.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to init balance: %w", mapPgError(err))
	}
	return nil
}

// GetBalance retrieves the current balance for an account
func (r *LedgerRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	return r.getBalanceWithLock(ctx, accountID, false)
}

// GetBalanceForUpdate retrieves the balance with a row-level lock
// (SELECT FOR UPDATE). Must be called inside a commit scope.
func (r *LedgerRepository) GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	return r.getBalanceWithLock(ctx, accountID, true)
}

func (r *LedgerRepository) getBalanceWithLock(ctx context.Context, accountID uuid.UUID, forUpdate bool) (*ledger.Balance, error) {
	query := `
		SELECT account_id, currency, amount::text, last_updated
		FROM balances
		WHERE account_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var balance ledger.Balance
	var amountStr string

	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query, accountID).Scan(
		&balance.AccountID,
		&balance.Currency,
		&amountStr,
		&balance.LastUpdated,
	)
	if err != nil {
		return nil, mapPgError(err)
	}

	balance.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	return &balance, nil
}

// UpdateBalance writes the new balance amount
func (r *LedgerRepository) UpdateBalance(ctx context.Context, balance *ledger.Balance) error {
	query := `
		UPDATE balances
		SET amount = $2, last_updated = $3
		WHERE account_id = $1
	`

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, query, balance.AccountID, balance.Amount.String(), balance.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// Journal operations

// CreateTransaction inserts a transaction together with its entries
func (r *LedgerRepository) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	txQuery := `
		INSERT INTO transactions (id, transaction_id, kind, initiator_id, amount, currency, from_account, to_account, status, description, reference, metadata, failure_reason, processed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	q := r.getQueryer(ctx)
	_, err = q.Exec(ctx, txQuery,
		tx.ID,
		tx.TransactionID,
		string(tx.Kind),
		tx.InitiatorID,
		tx.Amount.String(),
		string(tx.Currency),
		tx.FromAccount,
		tx.ToAccount,
		string(tx.Status),
		tx.Description,
		tx.Reference,
		metadataJSON,
		tx.FailureReason,
		tx.ProcessedAt,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", mapPgError(err))
	}

	entryQuery := `
		INSERT INTO entries (transaction_id, account_id, side, amount)
		VALUES ($1, $2, $3, $4)
	`
	for _, entry := range tx.Entries {
		if _, err := q.Exec(ctx, entryQuery, tx.ID, entry.AccountID, string(entry.Side), entry.Amount.String()); err != nil {
			return fmt.Errorf("failed to insert entry: %w", mapPgError(err))
		}
	}

	return nil
}

// UpdateTransactionStatus performs a guarded status transition. Returns
// ledger.ErrStateConflict if the row is no longer in the from status.
func (r *LedgerRepository) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to ledger.TransactionStatus, processedAt *time.Time, failureReason *string) error {
	query := `
		UPDATE transactions
		SET status = $3,
		    processed_at = COALESCE($4, processed_at),
		    failure_reason = COALESCE($5, failure_reason),
		    updated_at = NOW()
		WHERE transaction_id = $1 AND status = $2
	`

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, query, transactionID, string(from), string(to), processedAt, failureReason)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE transaction_id = $1)`, transactionID).Scan(&exists); err != nil {
			return mapPgError(err)
		}
		if !exists {
			return ledger.ErrNotFound
		}
		return ledger.ErrStateConflict
	}
	return nil
}

const transactionColumns = `id, transaction_id, kind, initiator_id, amount::text, currency, from_account, to_account, status, description, reference, metadata, failure_reason, processed_at, created_at, updated_at`

// GetTransaction retrieves a transaction by internal ID with its entries
func (r *LedgerRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	q := r.getQueryer(ctx)
	tx, err := scanTransaction(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetTransactionByTxID retrieves a transaction by its public id
func (r *LedgerRepository) GetTransactionByTxID(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`
	q := r.getQueryer(ctx)
	tx, err := scanTransaction(q.QueryRow(ctx, query, transactionID))
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactionsByUser lists transactions initiated by a user
func (r *LedgerRepository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, filter ledger.TransactionFilter, page ledger.Page) ([]*ledger.Transaction, int64, error) {
	where := " WHERE initiator_id = $1"
	args := []any{userID}
	return r.listTransactions(ctx, where, args, filter, page)
}

// ListTransactionsByAccount lists transactions whose entries touch the
// account.
func (r *LedgerRepository) ListTransactionsByAccount(ctx context.Context, accountNumber string, filter ledger.TransactionFilter, page ledger.Page) ([]*ledger.Transaction, int64, error) {
	where := ` WHERE id IN (
		SELECT e.transaction_id FROM entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE a.account_number = $1
	)`
	args := []any{accountNumber}
	return r.listTransactions(ctx, where, args, filter, page)
}

func (r *LedgerRepository) listTransactions(ctx context.Context, where string, args []any, filter ledger.TransactionFilter, page ledger.Page) ([]*ledger.Transaction, int64, error) {
	argPos := len(args) + 1

	if filter.Kind != nil {
		where += fmt.Sprintf(" AND kind = $%d", argPos)
		args = append(args, string(*filter.Kind))
		argPos++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *filter.From)
		argPos++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *filter.To)
		argPos++
	}
	if filter.AccountNumber != nil {
		where += fmt.Sprintf(` AND id IN (
			SELECT e.transaction_id FROM entries e
			JOIN accounts a ON a.id = e.account_id
			WHERE a.account_number = $%d
		)`, argPos)
		args = append(args, *filter.AccountNumber)
		argPos++
	}
	if filter.MinAmount != nil {
		where += fmt.Sprintf(" AND amount >= $%d", argPos)
		args = append(args, filter.MinAmount.String())
		argPos++
	}
	if filter.MaxAmount != nil {
		where += fmt.Sprintf(" AND amount <= $%d", argPos)
		args = append(args, filter.MaxAmount.String())
		argPos++
	}

	orderCol := "created_at"
	if page.SortBy == "amount" {
		orderCol = "amount"
	}
	direction := "ASC"
	if page.SortDesc {
		direction = "DESC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s, transaction_id ASC", orderCol, direction)

	query := `SELECT ` + transactionColumns + `, COUNT(*) OVER() AS total FROM transactions` + where + order
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, page.Limit, page.Offset())

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", mapPgError(err))
	}
	defer rows.Close()

	var transactions []*ledger.Transaction
	var total int64
	for rows.Next() {
		tx, rowTotal, err := scanTransactionWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		total = rowTotal
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating transactions: %w", mapPgError(err))
	}

	for _, tx := range transactions {
		if err := r.loadEntries(ctx, tx); err != nil {
			return nil, 0, err
		}
	}

	// The window total is zero only when the page ran past the result set;
	// fall back to a bare count so callers still see the real total.
	if transactions == nil {
		countQuery := `SELECT COUNT(*) FROM transactions` + where
		if err := q.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, mapPgError(err)
		}
	}

	return transactions, total, nil
}

// FindCompletedReversalOf returns the COMPLETED reversal pointing at the
// given transaction id, or ledger.ErrNotFound.
func (r *LedgerRepository) FindCompletedReversalOf(ctx context.Context, originalTransactionID string) (*ledger.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE kind = 'REVERSAL' AND status = 'COMPLETED' AND metadata->>'originalTransactionId' = $1
	`
	q := r.getQueryer(ctx)
	tx, err := scanTransaction(q.QueryRow(ctx, query, originalTransactionID))
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListPendingOlderThan returns PENDING transactions created before the
// cutoff, oldest first.
func (r *LedgerRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*ledger.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
	`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", mapPgError(err))
	}
	defer rows.Close()

	var transactions []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", mapPgError(err))
	}

	for _, tx := range transactions {
		if err := r.loadEntries(ctx, tx); err != nil {
			return nil, err
		}
	}
	return transactions, nil
}

func (r *LedgerRepository) loadEntries(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		SELECT account_id, side, amount::text
		FROM entries
		WHERE transaction_id = $1
		ORDER BY id ASC
	`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to query entries: %w", mapPgError(err))
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var entry ledger.Entry
		var amountStr string
		if err := rows.Scan(&entry.AccountID, &entry.Side, &amountStr); err != nil {
			return fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse entry amount: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating entries: %w", mapPgError(err))
	}

	tx.Entries = entries
	return nil
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	tx, _, err := scanTransactionFields(row, false)
	return tx, err
}

func scanTransactionWithTotal(row pgx.Row) (*ledger.Transaction, int64, error) {
	return scanTransactionFields(row, true)
}

func scanTransactionFields(row pgx.Row, withTotal bool) (*ledger.Transaction, int64, error) {
	var tx ledger.Transaction
	var amountStr string
	var metadataJSON []byte
	var fromAccount, toAccount, reference, failureReason sql.NullString
	var processedAt sql.NullTime
	var total int64

	dest := []any{
		&tx.ID,
		&tx.TransactionID,
		&tx.Kind,
		&tx.InitiatorID,
		&amountStr,
		&tx.Currency,
		&fromAccount,
		&toAccount,
		&tx.Status,
		&tx.Description,
		&reference,
		&metadataJSON,
		&failureReason,
		&processedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	}
	if withTotal {
		dest = append(dest, &total)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, 0, mapPgError(err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse amount: %w", err)
	}
	tx.Amount = amount

	if fromAccount.Valid {
		tx.FromAccount = &fromAccount.String
	}
	if toAccount.Valid {
		tx.ToAccount = &toAccount.String
	}
	if reference.Valid {
		tx.Reference = &reference.String
	}
	if failureReason.Valid {
		tx.FailureReason = &failureReason.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		tx.ProcessedAt = &t
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &tx.Metadata); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &tx, total, nil
}

// Transaction management using pgx transactions
// Transactions are stored in context using txKey

type ctxKey string

const txContextKey ctxKey = "ledger_tx"

// BeginTx starts a SERIALIZABLE database transaction and stores it in the
// context
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return ctx, ledger.ErrTxInProgress
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", mapPgError(err))
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return ledger.ErrNoTransaction
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return ledger.ErrNoTransaction
	}

	if err := tx.Rollback(ctx); err != nil {
		// Already committed or rolled back
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return mapPgError(err)
	}
	return nil
}

func (r *LedgerRepository) getTxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise
// the pool, so every method works both inside and outside commit scopes.
func (r *LedgerRepository) getQueryer(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}
