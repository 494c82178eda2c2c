package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	apperrors "github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/shared/errors"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

// Cache is an optional read-through cache for aggregate queries.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config holds the engine knobs.
type Config struct {
	MaxRetries     int           // retries after a serialization conflict
	BaseBackoff    time.Duration // base delay, doubled per retry
	SweepStaleness time.Duration // minimum age before the sweeper picks up a PENDING transaction
	StatsCacheTTL  time.Duration
	Limits         money.Limits
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseBackoff:    10 * time.Millisecond,
		SweepStaleness: 60 * time.Second,
		StatsCacheTTL:  30 * time.Second,
		Limits:         money.DefaultLimits(),
	}
}

// Actor identifies who is performing an operation.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// Service is the transactional ledger engine. All monetary mutations run
// inside a repository commit scope and are retried on serialization
// conflicts with exponential backoff.
type Service struct {
	repo   Repository
	router *SystemRouter
	cache  Cache
	cfg    Config
	log    *logger.Logger
}

// NewService creates the ledger engine. cache may be nil.
func NewService(repo Repository, router *SystemRouter, cache Cache, cfg Config, log *logger.Logger) *Service {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 10 * time.Millisecond
	}
	return &Service{
		repo:   repo,
		router: router,
		cache:  cache,
		cfg:    cfg,
		log:    log.WithComponent("ledger"),
	}
}

// ---- account lifecycle ----

// OpenAccountInput describes a new customer account.
type OpenAccountInput struct {
	OwnerID  uuid.UUID
	Kind     AccountKind
	Currency money.Currency
	Metadata map[string]any
}

// OpenAccount creates a customer account with a zero balance.
func (s *Service) OpenAccount(ctx context.Context, in OpenAccountInput) (*Account, error) {
	if !in.Kind.IsValid() || in.Kind == AccountKindSystem {
		return nil, apperrors.BadRequest("invalid account kind")
	}
	if !in.Currency.IsValid() {
		return nil, apperrors.BadRequest("invalid currency")
	}
	if in.OwnerID == uuid.Nil {
		return nil, apperrors.BadRequest("owner is required")
	}

	now := time.Now()
	account := &Account{
		ID:            uuid.New(),
		AccountNumber: MintAccountNumber(),
		OwnerID:       in.OwnerID,
		Kind:          in.Kind,
		Currency:      in.Currency,
		Active:        true,
		Metadata:      in.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.withCommit(ctx, "account_open", func(txCtx context.Context) error {
		if err := s.repo.CreateAccount(txCtx, account); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return apperrors.Conflict("account number collision")
			}
			return err
		}
		return s.repo.InitBalance(txCtx, &Balance{
			AccountID:   account.ID,
			Currency:    in.Currency,
			Amount:      money.Zero(),
			LastUpdated: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("account opened",
		"account_number", account.AccountNumber,
		"kind", account.Kind,
		"currency", account.Currency,
	)
	return account, nil
}

// CloseAccount deactivates an account. Closed accounts reject new
// transactions but keep their history and balance readable.
func (s *Service) CloseAccount(ctx context.Context, actor Actor, accountNumber string) (*Account, error) {
	return s.setActive(ctx, actor, accountNumber, false)
}

// ReopenAccount reactivates a closed account.
func (s *Service) ReopenAccount(ctx context.Context, actor Actor, accountNumber string) (*Account, error) {
	return s.setActive(ctx, actor, accountNumber, true)
}

func (s *Service) setActive(ctx context.Context, actor Actor, accountNumber string, active bool) (*Account, error) {
	var account *Account
	err := s.withCommit(ctx, "account_update", func(txCtx context.Context) error {
		var err error
		account, err = s.fetchAccount(txCtx, accountNumber)
		if err != nil {
			return err
		}
		if account.IsSystem() {
			return apperrors.Forbidden("system accounts cannot be modified")
		}
		if account.OwnerID != actor.UserID && !actor.Admin {
			return apperrors.Forbidden("not the account owner")
		}
		if account.Active == active {
			return nil
		}
		if err := s.repo.SetAccountActive(txCtx, account.ID, active, account.Version); err != nil {
			if errors.Is(err, ErrStateConflict) {
				return ErrSerialization
			}
			return err
		}
		account.Active = active
		account.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount returns an account with its current balance.
func (s *Service) GetAccount(ctx context.Context, actor Actor, accountNumber string) (*Account, *Balance, error) {
	account, err := s.fetchAccount(ctx, accountNumber)
	if err != nil {
		return nil, nil, err
	}
	if account.OwnerID != actor.UserID && !actor.Admin {
		return nil, nil, apperrors.Forbidden("not the account owner")
	}
	balance, err := s.repo.GetBalance(ctx, account.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, apperrors.NotFound("balance")
		}
		return nil, nil, storeError(err)
	}
	return account, balance, nil
}

// ListAccounts returns all accounts owned by the user.
func (s *Service) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*Account, error) {
	accounts, err := s.repo.ListAccountsByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeError(err)
	}
	return accounts, nil
}

// ---- monetary primitives ----

// MovementInput describes a single-account operation against a system
// counter-party (deposit, withdrawal, fee).
type MovementInput struct {
	Actor         Actor
	AccountNumber string
	Amount        string
	Currency      money.Currency
	Description   string
	Reference     *string
	Metadata      map[string]any
}

// TransferInput describes a customer-to-customer movement.
type TransferInput struct {
	Actor             Actor
	FromAccountNumber string
	ToAccountNumber   string
	Amount            string
	Currency          money.Currency
	Description       string
	Reference         *string
	Metadata          map[string]any
}

// ReversalInput describes an administrative reversal of a completed
// transaction.
type ReversalInput struct {
	Actor                 Actor
	OriginalTransactionID string
	Reason                string
	Metadata              map[string]any
}

// postingSpec fixes the shape of a system-counter-party movement per kind.
type postingSpec struct {
	kind         TransactionKind
	purpose      SystemPurpose
	customerSide EntrySide
	requireFunds bool
}

var (
	depositSpec    = postingSpec{kind: KindDeposit, purpose: PurposeDeposits, customerSide: Credit}
	withdrawalSpec = postingSpec{kind: KindWithdrawal, purpose: PurposeWithdrawals, customerSide: Debit, requireFunds: true}
	feeSpec        = postingSpec{kind: KindFee, purpose: PurposeFees, customerSide: Debit, requireFunds: true}
)

// Deposit credits a customer account against the system deposits account.
func (s *Service) Deposit(ctx context.Context, in MovementInput) (*Transaction, error) {
	return s.postMovement(ctx, depositSpec, in)
}

// Withdraw debits a customer account against the system withdrawals
// account. Fails with INSUFFICIENT_FUNDS when the balance cannot cover it.
func (s *Service) Withdraw(ctx context.Context, in MovementInput) (*Transaction, error) {
	return s.postMovement(ctx, withdrawalSpec, in)
}

// ChargeFee debits a customer account against the system fees account.
func (s *Service) ChargeFee(ctx context.Context, in MovementInput) (*Transaction, error) {
	return s.postMovement(ctx, feeSpec, in)
}

func (s *Service) postMovement(ctx context.Context, spec postingSpec, in MovementInput) (*Transaction, error) {
	amount, err := s.parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if !in.Currency.IsValid() {
		return nil, apperrors.BadRequest("invalid currency")
	}

	system, err := s.router.Account(ctx, spec.purpose, in.Currency)
	if err != nil {
		return nil, storeError(err)
	}

	var result *Transaction
	err = s.withCommit(ctx, string(spec.kind), func(txCtx context.Context) error {
		account, err := s.fetchActiveAccount(txCtx, in.AccountNumber, in.Currency)
		if err != nil {
			return err
		}

		balance, err := s.lockBalance(txCtx, account.ID)
		if err != nil {
			return err
		}
		delta := amount
		if spec.customerSide == Debit {
			delta = amount.Neg()
		}
		if spec.requireFunds && !allowsNegative(account.Kind) && balance.Amount.Add(delta).Sign() < 0 {
			return apperrors.InsufficientFunds(money.Format(balance.Amount), money.Format(amount))
		}
		systemBalance, err := s.lockBalance(txCtx, system.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		tx := &Transaction{
			ID:            uuid.New(),
			TransactionID: MintTransactionID(spec.kind),
			Kind:          spec.kind,
			InitiatorID:   in.Actor.UserID,
			Amount:        amount,
			Currency:      in.Currency,
			Status:        StatusProcessing,
			Description:   in.Description,
			Reference:     in.Reference,
			Metadata:      in.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
			Entries: []Entry{
				{AccountID: account.ID, Side: spec.customerSide, Amount: amount},
				{AccountID: system.ID, Side: opposite(spec.customerSide), Amount: amount},
			},
		}
		if spec.customerSide == Credit {
			tx.ToAccount = &account.AccountNumber
		} else {
			tx.FromAccount = &account.AccountNumber
		}
		if err := tx.Validate(); err != nil {
			return apperrors.Internal("malformed transaction", err)
		}

		if err := s.insertTransaction(txCtx, tx); err != nil {
			return err
		}
		if err := s.writeBalance(txCtx, balance, delta, now); err != nil {
			return err
		}
		if err := s.writeBalance(txCtx, systemBalance, delta.Neg(), now); err != nil {
			return err
		}
		if err := s.complete(txCtx, tx, now); err != nil {
			return err
		}

		result = tx
		return nil
	})
	if err != nil {
		transactionsTotal.WithLabelValues(string(spec.kind), "failed").Inc()
		return nil, err
	}

	transactionsTotal.WithLabelValues(string(spec.kind), "completed").Inc()
	s.log.WithContext(ctx).Info("transaction completed",
		"transaction_id", result.TransactionID,
		"kind", result.Kind,
		"amount", money.Format(result.Amount),
		"currency", result.Currency,
	)
	return result, nil
}

// Transfer moves funds between two customer accounts in one balanced
// transaction. Balances are locked in account-id order so concurrent
// opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (*Transaction, error) {
	amount, err := s.parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if !in.Currency.IsValid() {
		return nil, apperrors.BadRequest("invalid currency")
	}
	if in.FromAccountNumber == in.ToAccountNumber {
		return nil, apperrors.BadRequest("cannot transfer to the same account")
	}

	var result *Transaction
	err = s.withCommit(ctx, string(KindTransfer), func(txCtx context.Context) error {
		source, err := s.fetchActiveAccount(txCtx, in.FromAccountNumber, in.Currency)
		if err != nil {
			return err
		}
		if source.OwnerID != in.Actor.UserID && !in.Actor.Admin {
			return apperrors.Forbidden("not the source account owner")
		}
		// fetchActiveAccount already pinned both accounts to in.Currency,
		// so source and dest are guaranteed to match here.
		dest, err := s.fetchActiveAccount(txCtx, in.ToAccountNumber, in.Currency)
		if err != nil {
			return err
		}

		first, second := source, dest
		if dest.ID.String() < source.ID.String() {
			first, second = dest, source
		}
		firstBal, err := s.lockBalance(txCtx, first.ID)
		if err != nil {
			return err
		}
		secondBal, err := s.lockBalance(txCtx, second.ID)
		if err != nil {
			return err
		}
		sourceBal, destBal := firstBal, secondBal
		if first.ID != source.ID {
			sourceBal, destBal = secondBal, firstBal
		}

		if !allowsNegative(source.Kind) && sourceBal.Amount.Sub(amount).Sign() < 0 {
			return apperrors.InsufficientFunds(money.Format(sourceBal.Amount), money.Format(amount))
		}

		now := time.Now()
		tx := &Transaction{
			ID:            uuid.New(),
			TransactionID: MintTransactionID(KindTransfer),
			Kind:          KindTransfer,
			InitiatorID:   in.Actor.UserID,
			Amount:        amount,
			Currency:      in.Currency,
			FromAccount:   &source.AccountNumber,
			ToAccount:     &dest.AccountNumber,
			Status:        StatusProcessing,
			Description:   in.Description,
			Reference:     in.Reference,
			Metadata:      in.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
			Entries: []Entry{
				{AccountID: source.ID, Side: Debit, Amount: amount},
				{AccountID: dest.ID, Side: Credit, Amount: amount},
			},
		}
		if err := tx.Validate(); err != nil {
			return apperrors.Internal("malformed transaction", err)
		}

		if err := s.insertTransaction(txCtx, tx); err != nil {
			return err
		}
		if err := s.writeBalance(txCtx, sourceBal, amount.Neg(), now); err != nil {
			return err
		}
		if err := s.writeBalance(txCtx, destBal, amount, now); err != nil {
			return err
		}
		if err := s.complete(txCtx, tx, now); err != nil {
			return err
		}

		result = tx
		return nil
	})
	if err != nil {
		transactionsTotal.WithLabelValues(string(KindTransfer), "failed").Inc()
		return nil, err
	}

	transactionsTotal.WithLabelValues(string(KindTransfer), "completed").Inc()
	s.log.WithContext(ctx).Info("transfer completed",
		"transaction_id", result.TransactionID,
		"amount", money.Format(result.Amount),
		"currency", result.Currency,
	)
	return result, nil
}

// Reverse creates a compensating transaction for a completed one by
// flipping every entry. Admin only; a transaction can be reversed at most
// once.
func (s *Service) Reverse(ctx context.Context, in ReversalInput) (*Transaction, error) {
	if !in.Actor.Admin {
		return nil, apperrors.Forbidden("reversal requires an administrator")
	}
	if in.Reason == "" {
		return nil, apperrors.BadRequest("reversal reason is required")
	}
	if !ValidTransactionID(in.OriginalTransactionID) {
		return nil, apperrors.BadRequest("invalid transaction id")
	}

	var result *Transaction
	err := s.withCommit(ctx, string(KindReversal), func(txCtx context.Context) error {
		orig, err := s.repo.GetTransactionByTxID(txCtx, in.OriginalTransactionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperrors.NotFound("transaction")
			}
			return storeError(err)
		}
		if orig.Kind == KindReversal {
			return apperrors.BadRequest("a reversal cannot itself be reversed")
		}
		if orig.Status != StatusCompleted {
			return apperrors.Conflict("only completed transactions can be reversed").
				WithDetail("status", string(orig.Status))
		}
		if _, err := s.repo.FindCompletedReversalOf(txCtx, orig.TransactionID); err == nil {
			return apperrors.AlreadyReversed(orig.TransactionID)
		} else if !errors.Is(err, ErrNotFound) {
			return storeError(err)
		}

		// Net the flipped entries per account before applying, in case the
		// original touched one account more than once.
		deltas := make(map[uuid.UUID]decimal.Decimal, len(orig.Entries))
		flipped := make([]Entry, len(orig.Entries))
		for i, e := range orig.Entries {
			flipped[i] = Entry{AccountID: e.AccountID, Side: opposite(e.Side), Amount: e.Amount}
			deltas[e.AccountID] = deltas[e.AccountID].Add(flipped[i].SignedAmount())
		}

		ids := sortedAccountIDs(deltas)

		now := time.Now()
		balances := make([]*Balance, 0, len(ids))
		for _, id := range ids {
			account, err := s.repo.GetAccount(txCtx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return apperrors.NotFound("account")
				}
				return storeError(err)
			}
			balance, err := s.lockBalance(txCtx, id)
			if err != nil {
				return err
			}
			if !allowsNegative(account.Kind) && balance.Amount.Add(deltas[id]).Sign() < 0 {
				return apperrors.InsufficientFunds(money.Format(balance.Amount), money.Format(deltas[id].Neg())).
					WithDetail("accountNumber", account.AccountNumber)
			}
			balances = append(balances, balance)
		}

		metadata := make(map[string]any, len(in.Metadata)+2)
		for k, v := range in.Metadata {
			metadata[k] = v
		}
		metadata[MetadataKeyOriginalTransactionID] = orig.TransactionID
		metadata[MetadataKeyReversalReason] = in.Reason

		tx := &Transaction{
			ID:            uuid.New(),
			TransactionID: MintTransactionID(KindReversal),
			Kind:          KindReversal,
			InitiatorID:   in.Actor.UserID,
			Entries:       flipped,
			Amount:        orig.Amount,
			Currency:      orig.Currency,
			FromAccount:   orig.ToAccount,
			ToAccount:     orig.FromAccount,
			Status:        StatusProcessing,
			Description:   fmt.Sprintf("Reversal of %s", orig.TransactionID),
			Reference:     &orig.TransactionID,
			Metadata:      metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Validate(); err != nil {
			return apperrors.Internal("malformed reversal", err)
		}

		if err := s.insertTransaction(txCtx, tx); err != nil {
			return err
		}
		for _, balance := range balances {
			if err := s.writeBalance(txCtx, balance, deltas[balance.AccountID], now); err != nil {
				return err
			}
		}
		if err := s.complete(txCtx, tx, now); err != nil {
			return err
		}

		result = tx
		return nil
	})
	if err != nil {
		transactionsTotal.WithLabelValues(string(KindReversal), "failed").Inc()
		return nil, err
	}

	transactionsTotal.WithLabelValues(string(KindReversal), "completed").Inc()
	s.log.WithContext(ctx).Info("transaction reversed",
		"transaction_id", result.TransactionID,
		"original_transaction_id", in.OriginalTransactionID,
	)
	return result, nil
}

// ---- deferred processing ----

// EnqueueDeposit records a deposit as PENDING without touching balances.
// The sweeper or an explicit process call settles it later.
func (s *Service) EnqueueDeposit(ctx context.Context, in MovementInput) (*Transaction, error) {
	return s.enqueueMovement(ctx, depositSpec, in)
}

// EnqueueWithdrawal records a withdrawal as PENDING without touching
// balances. Funds are checked at settlement time, not enqueue time.
func (s *Service) EnqueueWithdrawal(ctx context.Context, in MovementInput) (*Transaction, error) {
	return s.enqueueMovement(ctx, withdrawalSpec, in)
}

func (s *Service) enqueueMovement(ctx context.Context, spec postingSpec, in MovementInput) (*Transaction, error) {
	amount, err := s.parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if !in.Currency.IsValid() {
		return nil, apperrors.BadRequest("invalid currency")
	}

	system, err := s.router.Account(ctx, spec.purpose, in.Currency)
	if err != nil {
		return nil, storeError(err)
	}

	var result *Transaction
	err = s.withCommit(ctx, "enqueue", func(txCtx context.Context) error {
		account, err := s.fetchActiveAccount(txCtx, in.AccountNumber, in.Currency)
		if err != nil {
			return err
		}

		now := time.Now()
		tx := &Transaction{
			ID:            uuid.New(),
			TransactionID: MintTransactionID(spec.kind),
			Kind:          spec.kind,
			InitiatorID:   in.Actor.UserID,
			Amount:        amount,
			Currency:      in.Currency,
			Status:        StatusPending,
			Description:   in.Description,
			Reference:     in.Reference,
			Metadata:      in.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
			Entries: []Entry{
				{AccountID: account.ID, Side: spec.customerSide, Amount: amount},
				{AccountID: system.ID, Side: opposite(spec.customerSide), Amount: amount},
			},
		}
		if spec.customerSide == Credit {
			tx.ToAccount = &account.AccountNumber
		} else {
			tx.FromAccount = &account.AccountNumber
		}
		if err := tx.Validate(); err != nil {
			return apperrors.Internal("malformed transaction", err)
		}
		if err := s.insertTransaction(txCtx, tx); err != nil {
			return err
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	transactionsTotal.WithLabelValues(string(spec.kind), "pending").Inc()
	return result, nil
}

// EnqueueTransfer records a transfer as PENDING without touching balances.
func (s *Service) EnqueueTransfer(ctx context.Context, in TransferInput) (*Transaction, error) {
	amount, err := s.parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if !in.Currency.IsValid() {
		return nil, apperrors.BadRequest("invalid currency")
	}
	if in.FromAccountNumber == in.ToAccountNumber {
		return nil, apperrors.BadRequest("cannot transfer to the same account")
	}

	var result *Transaction
	err = s.withCommit(ctx, "enqueue", func(txCtx context.Context) error {
		source, err := s.fetchActiveAccount(txCtx, in.FromAccountNumber, in.Currency)
		if err != nil {
			return err
		}
		if source.OwnerID != in.Actor.UserID && !in.Actor.Admin {
			return apperrors.Forbidden("not the source account owner")
		}
		dest, err := s.fetchActiveAccount(txCtx, in.ToAccountNumber, in.Currency)
		if err != nil {
			return err
		}

		now := time.Now()
		tx := &Transaction{
			ID:            uuid.New(),
			TransactionID: MintTransactionID(KindTransfer),
			Kind:          KindTransfer,
			InitiatorID:   in.Actor.UserID,
			Amount:        amount,
			Currency:      in.Currency,
			FromAccount:   &source.AccountNumber,
			ToAccount:     &dest.AccountNumber,
			Status:        StatusPending,
			Description:   in.Description,
			Reference:     in.Reference,
			Metadata:      in.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
			Entries: []Entry{
				{AccountID: source.ID, Side: Debit, Amount: amount},
				{AccountID: dest.ID, Side: Credit, Amount: amount},
			},
		}
		if err := tx.Validate(); err != nil {
			return apperrors.Internal("malformed transaction", err)
		}
		if err := s.insertTransaction(txCtx, tx); err != nil {
			return err
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	transactionsTotal.WithLabelValues(string(KindTransfer), "pending").Inc()
	return result, nil
}

// CancelPending cancels a PENDING transaction before the sweeper settles
// it. Only the initiator or an admin may cancel.
func (s *Service) CancelPending(ctx context.Context, actor Actor, transactionID string) (*Transaction, error) {
	var result *Transaction
	err := s.withCommit(ctx, "cancel", func(txCtx context.Context) error {
		tx, err := s.repo.GetTransactionByTxID(txCtx, transactionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperrors.NotFound("transaction")
			}
			return storeError(err)
		}
		if tx.InitiatorID != actor.UserID && !actor.Admin {
			return apperrors.Forbidden("not the transaction initiator")
		}
		if !tx.Status.CanTransitionTo(StatusCancelled) {
			return apperrors.IllegalStateTransition(string(tx.Status), string(StatusCancelled))
		}
		if err := s.transition(txCtx, tx, tx.Status, StatusCancelled, nil, nil); err != nil {
			return err
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	transactionsTotal.WithLabelValues(string(result.Kind), "cancelled").Inc()
	return result, nil
}

// ---- queries ----

// GetTransaction fetches a transaction by its public id. Non-admins may
// only see transactions they initiated.
func (s *Service) GetTransaction(ctx context.Context, actor Actor, transactionID string) (*Transaction, error) {
	tx, err := s.repo.GetTransactionByTxID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("transaction")
		}
		return nil, storeError(err)
	}
	if tx.InitiatorID != actor.UserID && !actor.Admin {
		return nil, apperrors.NotFound("transaction")
	}
	return tx, nil
}

// ListUserTransactions lists transactions initiated by the user, filtered
// and paged.
func (s *Service) ListUserTransactions(ctx context.Context, actor Actor, userID uuid.UUID, filter TransactionFilter, page Page) ([]*Transaction, int64, error) {
	if userID != actor.UserID && !actor.Admin {
		return nil, 0, apperrors.Forbidden("cannot list another user's transactions")
	}
	txs, total, err := s.repo.ListTransactionsByUser(ctx, userID, filter, page.Normalize())
	if err != nil {
		return nil, 0, storeError(err)
	}
	return txs, total, nil
}

// ListAccountTransactions lists transactions touching the account.
func (s *Service) ListAccountTransactions(ctx context.Context, actor Actor, accountNumber string, filter TransactionFilter, page Page) ([]*Transaction, int64, error) {
	account, err := s.fetchAccount(ctx, accountNumber)
	if err != nil {
		return nil, 0, err
	}
	if account.OwnerID != actor.UserID && !actor.Admin {
		return nil, 0, apperrors.Forbidden("not the account owner")
	}
	txs, total, err := s.repo.ListTransactionsByAccount(ctx, accountNumber, filter, page.Normalize())
	if err != nil {
		return nil, 0, storeError(err)
	}
	return txs, total, nil
}

// UserStats aggregates the user's completed transactions, cached briefly
// when a cache is configured.
func (s *Service) UserStats(ctx context.Context, actor Actor, userID uuid.UUID, window Window) (*UserStats, error) {
	if userID != actor.UserID && !actor.Admin {
		return nil, apperrors.Forbidden("cannot view another user's statistics")
	}

	key := statsKey("user", userID.String(), window)
	if s.cache != nil {
		var cached UserStats
		if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	stats, err := s.repo.AggregateUserStats(ctx, userID, window)
	if err != nil {
		return nil, storeError(err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cfg.StatsCacheTTL); err != nil {
			s.log.WithError(err).Warn("stats cache write failed", "key", key)
		}
	}
	return stats, nil
}

// AccountStats aggregates completed transactions touching the account.
func (s *Service) AccountStats(ctx context.Context, actor Actor, accountNumber string, window Window) (*AccountStats, error) {
	account, err := s.fetchAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != actor.UserID && !actor.Admin {
		return nil, apperrors.Forbidden("not the account owner")
	}

	key := statsKey("account", accountNumber, window)
	if s.cache != nil {
		var cached AccountStats
		if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	stats, err := s.repo.AggregateAccountStats(ctx, accountNumber, window)
	if err != nil {
		return nil, storeError(err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cfg.StatsCacheTTL); err != nil {
			s.log.WithError(err).Warn("stats cache write failed", "key", key)
		}
	}
	return stats, nil
}

// ---- commit frame ----

// withCommit runs fn inside a repository commit scope, retrying
// serialization conflicts with exponential backoff up to the configured
// budget.
func (s *Service) withCommit(ctx context.Context, kind string, fn func(txCtx context.Context) error) error {
	timer := prometheus.NewTimer(commitDuration.WithLabelValues(kind))
	defer timer.ObserveDuration()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			commitRetries.Inc()
			delay := s.cfg.BaseBackoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return contextError(ctx.Err())
			}
		}

		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSerialization) {
			return err
		}
		lastErr = err
		s.log.WithContext(ctx).Debug("commit aborted, retrying", "attempt", attempt+1, "kind", kind)
	}
	return apperrors.ConcurrencyExhausted(s.cfg.MaxRetries+1, lastErr)
}

func (s *Service) runOnce(ctx context.Context, fn func(txCtx context.Context) error) error {
	txCtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return storeError(err)
	}
	if err := fn(txCtx); err != nil {
		_ = s.repo.RollbackTx(txCtx)
		return err
	}
	if err := s.repo.CommitTx(txCtx); err != nil {
		_ = s.repo.RollbackTx(txCtx)
		return storeError(err)
	}
	return nil
}

// ---- helpers ----

func (s *Service) parseAmount(raw string) (decimal.Decimal, error) {
	d, err := money.Parse(raw, s.cfg.Limits)
	if err != nil {
		return decimal.Decimal{}, apperrors.BadRequest(err.Error())
	}
	return d, nil
}

func (s *Service) fetchAccount(ctx context.Context, accountNumber string) (*Account, error) {
	if !ValidAccountNumber(accountNumber) {
		return nil, apperrors.BadRequest("invalid account number")
	}
	account, err := s.repo.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("account")
		}
		return nil, storeError(err)
	}
	return account, nil
}

func (s *Service) fetchActiveAccount(ctx context.Context, accountNumber string, currency money.Currency) (*Account, error) {
	account, err := s.fetchAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, apperrors.InactiveAccount(accountNumber)
	}
	if account.Currency != currency {
		return nil, apperrors.CurrencyMismatch(string(currency), string(account.Currency))
	}
	return account, nil
}

func (s *Service) lockBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	balance, err := s.repo.GetBalanceForUpdate(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("balance")
		}
		return nil, storeError(err)
	}
	return balance, nil
}

func (s *Service) writeBalance(ctx context.Context, balance *Balance, delta decimal.Decimal, now time.Time) error {
	balance.Amount = balance.Amount.Add(delta)
	balance.LastUpdated = now
	if err := s.repo.UpdateBalance(ctx, balance); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *Service) insertTransaction(ctx context.Context, tx *Transaction) error {
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return apperrors.Conflict("duplicate transaction id").
				WithDetail("transactionId", tx.TransactionID)
		}
		return storeError(err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, tx *Transaction, from, to TransactionStatus, processedAt *time.Time, failureReason *string) error {
	if err := s.repo.UpdateTransactionStatus(ctx, tx.TransactionID, from, to, processedAt, failureReason); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return apperrors.IllegalStateTransition(string(from), string(to))
		}
		return storeError(err)
	}
	tx.Status = to
	tx.ProcessedAt = processedAt
	tx.FailureReason = failureReason
	tx.UpdatedAt = time.Now()
	return nil
}

// complete moves a freshly inserted PROCESSING transaction to COMPLETED.
func (s *Service) complete(ctx context.Context, tx *Transaction, now time.Time) error {
	processedAt := now
	return s.transition(ctx, tx, StatusProcessing, StatusCompleted, &processedAt, nil)
}

func allowsNegative(kind AccountKind) bool {
	return kind == AccountKindCredit || kind == AccountKindSystem
}

func opposite(side EntrySide) EntrySide {
	if side == Debit {
		return Credit
	}
	return Debit
}

func statsKey(scope, id string, w Window) string {
	from, to := "-", "-"
	if w.From != nil {
		from = w.From.UTC().Format(time.RFC3339)
	}
	if w.To != nil {
		to = w.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("stats:%s:%s:%s:%s", scope, id, from, to)
}

// storeError maps repository failures onto app errors. Serialization
// conflicts pass through untouched so the commit frame can retry them.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSerialization):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return contextError(err)
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.StoreUnavailable(err)
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.DeadlineExceeded(err)
	}
	return apperrors.Cancelled(err)
}
