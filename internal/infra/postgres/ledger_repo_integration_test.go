//go:build integration

package postgres

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func setupTest(t *testing.T) (*LedgerRepository, context.Context) {
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))

	repo := NewLedgerRepository(testDB.Pool)
	return repo, ctx
}

// Helper to create a test user
func createTestUser(t *testing.T, ctx context.Context) uuid.UUID {
	userID := uuid.New()
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, 'user', NOW(), NOW())
	`, userID, "test-"+userID.String()[:8]+"@example.com", "hash")
	require.NoError(t, err)
	return userID
}

func createTestAccount(t *testing.T, ctx context.Context, repo *LedgerRepository, ownerID uuid.UUID) *ledger.Account {
	now := time.Now()
	account := &ledger.Account{
		ID:            uuid.New(),
		AccountNumber: ledger.MintAccountNumber(),
		OwnerID:       ownerID,
		Kind:          ledger.AccountKindSavings,
		Currency:      money.USD,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))
	require.NoError(t, repo.InitBalance(ctx, &ledger.Balance{
		AccountID:   account.ID,
		Currency:    money.USD,
		Amount:      decimal.Zero,
		LastUpdated: now,
	}))
	return account
}

// Account tests

func TestLedgerRepository_CreateAccount_Success(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)

	account := createTestAccount(t, ctx, repo, ownerID)

	retrieved, err := repo.GetAccountByNumber(ctx, account.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, account.ID, retrieved.ID)
	assert.Equal(t, account.Kind, retrieved.Kind)
	assert.Equal(t, account.Currency, retrieved.Currency)
	assert.True(t, retrieved.Active)
}

func TestLedgerRepository_CreateAccount_DuplicateNumber(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)

	account := createTestAccount(t, ctx, repo, ownerID)

	dup := *account
	dup.ID = uuid.New()
	err := repo.CreateAccount(ctx, &dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestLedgerRepository_SetAccountActive_VersionConflict(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	account := createTestAccount(t, ctx, repo, ownerID)

	require.NoError(t, repo.SetAccountActive(ctx, account.ID, false, account.Version))

	// A second flip with the stale version must conflict.
	err := repo.SetAccountActive(ctx, account.ID, true, account.Version)
	assert.ErrorIs(t, err, ledger.ErrStateConflict)

	refreshed, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Active)
	assert.Equal(t, account.Version+1, refreshed.Version)
}

func TestLedgerRepository_GetOrCreateSystemAccount_Idempotent(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)

	candidate := func() *ledger.Account {
		now := time.Now()
		return &ledger.Account{
			ID:            uuid.New(),
			AccountNumber: ledger.MintAccountNumber(),
			OwnerID:       ownerID,
			Kind:          ledger.AccountKindSystem,
			Currency:      money.USD,
			Active:        true,
			Metadata:      map[string]any{ledger.MetadataKeyPurpose: string(ledger.PurposeDeposits)},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	first, created, err := repo.GetOrCreateSystemAccount(ctx, candidate(), ledger.PurposeDeposits)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.GetOrCreateSystemAccount(ctx, candidate(), ledger.PurposeDeposits)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

// Balance tests

func TestLedgerRepository_BalanceLifecycle(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	account := createTestAccount(t, ctx, repo, ownerID)

	balance, err := repo.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, balance.Amount.IsZero())

	txCtx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	locked, err := repo.GetBalanceForUpdate(txCtx, account.ID)
	require.NoError(t, err)
	locked.Amount = decimal.RequireFromString("123.45")
	locked.LastUpdated = time.Now()
	require.NoError(t, repo.UpdateBalance(txCtx, locked))
	require.NoError(t, repo.CommitTx(txCtx))

	balance, err = repo.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("123.45")))
}

func TestLedgerRepository_RollbackDiscardsWrites(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	account := createTestAccount(t, ctx, repo, ownerID)

	txCtx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	locked, err := repo.GetBalanceForUpdate(txCtx, account.ID)
	require.NoError(t, err)
	locked.Amount = decimal.RequireFromString("999.00")
	require.NoError(t, repo.UpdateBalance(txCtx, locked))
	require.NoError(t, repo.RollbackTx(txCtx))

	balance, err := repo.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, balance.Amount.IsZero())
}

// Journal tests

func buildTransaction(initiatorID uuid.UUID, debit, credit *ledger.Account, amount string) *ledger.Transaction {
	amt := decimal.RequireFromString(amount)
	now := time.Now()
	return &ledger.Transaction{
		ID:            uuid.New(),
		TransactionID: ledger.MintTransactionID(ledger.KindTransfer),
		Kind:          ledger.KindTransfer,
		InitiatorID:   initiatorID,
		Amount:        amt,
		Currency:      money.USD,
		FromAccount:   &debit.AccountNumber,
		ToAccount:     &credit.AccountNumber,
		Status:        ledger.StatusProcessing,
		Description:   "integration test",
		CreatedAt:     now,
		UpdatedAt:     now,
		Entries: []ledger.Entry{
			{AccountID: debit.ID, Side: ledger.Debit, Amount: amt},
			{AccountID: credit.ID, Side: ledger.Credit, Amount: amt},
		},
	}
}

func TestLedgerRepository_CreateAndGetTransaction(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	a := createTestAccount(t, ctx, repo, ownerID)
	b := createTestAccount(t, ctx, repo, ownerID)

	tx := buildTransaction(ownerID, a, b, "50.00")
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	retrieved, err := repo.GetTransactionByTxID(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, retrieved.ID)
	assert.True(t, retrieved.Amount.Equal(tx.Amount))
	require.Len(t, retrieved.Entries, 2)
	assert.Equal(t, ledger.Debit, retrieved.Entries[0].Side)
	assert.Equal(t, ledger.Credit, retrieved.Entries[1].Side)
}

func TestLedgerRepository_UpdateTransactionStatus_Guarded(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	a := createTestAccount(t, ctx, repo, ownerID)
	b := createTestAccount(t, ctx, repo, ownerID)

	tx := buildTransaction(ownerID, a, b, "10.00")
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	now := time.Now()
	require.NoError(t, repo.UpdateTransactionStatus(ctx, tx.TransactionID, ledger.StatusProcessing, ledger.StatusCompleted, &now, nil))

	// Row is no longer PROCESSING, guard must reject.
	err := repo.UpdateTransactionStatus(ctx, tx.TransactionID, ledger.StatusProcessing, ledger.StatusFailed, nil, nil)
	assert.ErrorIs(t, err, ledger.ErrStateConflict)

	err = repo.UpdateTransactionStatus(ctx, "TRF-0-00000000", ledger.StatusProcessing, ledger.StatusCompleted, nil, nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedgerRepository_ListTransactions(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	a := createTestAccount(t, ctx, repo, ownerID)
	b := createTestAccount(t, ctx, repo, ownerID)

	for _, amount := range []string{"10.00", "20.00", "30.00"} {
		tx := buildTransaction(ownerID, a, b, amount)
		require.NoError(t, repo.CreateTransaction(ctx, tx))
		now := time.Now()
		require.NoError(t, repo.UpdateTransactionStatus(ctx, tx.TransactionID, ledger.StatusProcessing, ledger.StatusCompleted, &now, nil))
	}

	txs, total, err := repo.ListTransactionsByUser(ctx, ownerID, ledger.TransactionFilter{}, ledger.DefaultPage())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, txs, 3)

	min := decimal.RequireFromString("15.00")
	txs, total, err = repo.ListTransactionsByUser(ctx, ownerID, ledger.TransactionFilter{MinAmount: &min}, ledger.DefaultPage())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	page := ledger.Page{Page: 1, Limit: 2, SortBy: "amount", SortDesc: true}
	txs, total, err = repo.ListTransactionsByAccount(ctx, a.AccountNumber, ledger.TransactionFilter{}, page.Normalize())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("30.00")))

	// Paging past the result set still reports the true total.
	page = ledger.Page{Page: 10, Limit: 20}
	txs, total, err = repo.ListTransactionsByUser(ctx, ownerID, ledger.TransactionFilter{}, page.Normalize())
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, int64(3), total)
}

func TestLedgerRepository_ListPendingOlderThan(t *testing.T) {
	repo, ctx := setupTest(t)
	ownerID := createTestUser(t, ctx)
	a := createTestAccount(t, ctx, repo, ownerID)
	b := createTestAccount(t, ctx, repo, ownerID)

	tx := buildTransaction(ownerID, a, b, "5.00")
	tx.Status = ledger.StatusPending
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	pending, err := repo.ListPendingOlderThan(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tx.TransactionID, pending[0].TransactionID)
	require.Len(t, pending[0].Entries, 2)

	pending, err = repo.ListPendingOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// Engine-level tests against the real repository

func newEngine(t *testing.T, ctx context.Context, repo *LedgerRepository) (*ledger.Service, uuid.UUID) {
	systemOwner := createTestUser(t, ctx)
	router := ledger.NewSystemRouter(repo, systemOwner)
	cfg := ledger.DefaultConfig()
	cfg.SweepStaleness = 0
	log := logger.New("test", io.Discard)
	return ledger.NewService(repo, router, nil, cfg, log), systemOwner
}

func TestEngine_DepositWithdrawTransfer_Postgres(t *testing.T) {
	repo, ctx := setupTest(t)
	svc, _ := newEngine(t, ctx, repo)

	userID := createTestUser(t, ctx)
	actor := ledger.Actor{UserID: userID}

	account, err := svc.OpenAccount(ctx, ledger.OpenAccountInput{
		OwnerID:  userID,
		Kind:     ledger.AccountKindSavings,
		Currency: money.USD,
	})
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, ledger.MovementInput{
		Actor:         actor,
		AccountNumber: account.AccountNumber,
		Amount:        "100.00",
		Currency:      money.USD,
	})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, ledger.MovementInput{
		Actor:         actor,
		AccountNumber: account.AccountNumber,
		Amount:        "30.00",
		Currency:      money.USD,
	})
	require.NoError(t, err)

	other, err := svc.OpenAccount(ctx, ledger.OpenAccountInput{
		OwnerID:  userID,
		Kind:     ledger.AccountKindSavings,
		Currency: money.USD,
	})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, ledger.TransferInput{
		Actor:             actor,
		FromAccountNumber: account.AccountNumber,
		ToAccountNumber:   other.AccountNumber,
		Amount:            "25.00",
		Currency:          money.USD,
	})
	require.NoError(t, err)

	_, balance, err := svc.GetAccount(ctx, actor, account.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("45.00")))

	_, balance, err = svc.GetAccount(ctx, actor, other.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("25.00")))

	// The books always sum to zero: customer positions are mirrored by the
	// system counter-party accounts.
	var sum string
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM balances`).Scan(&sum))
	assert.True(t, decimal.RequireFromString(sum).IsZero())
}

func TestEngine_ReverseAndSweep_Postgres(t *testing.T) {
	repo, ctx := setupTest(t)
	svc, _ := newEngine(t, ctx, repo)

	userID := createTestUser(t, ctx)
	actor := ledger.Actor{UserID: userID}
	admin := ledger.Actor{UserID: createTestUser(t, ctx), Admin: true}

	account, err := svc.OpenAccount(ctx, ledger.OpenAccountInput{
		OwnerID:  userID,
		Kind:     ledger.AccountKindSavings,
		Currency: money.USD,
	})
	require.NoError(t, err)

	dep, err := svc.Deposit(ctx, ledger.MovementInput{
		Actor:         actor,
		AccountNumber: account.AccountNumber,
		Amount:        "80.00",
		Currency:      money.USD,
	})
	require.NoError(t, err)

	rev, err := svc.Reverse(ctx, ledger.ReversalInput{
		Actor:                 admin,
		OriginalTransactionID: dep.TransactionID,
		Reason:                "integration check",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.KindReversal, rev.Kind)

	_, balance, err := svc.GetAccount(ctx, actor, account.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.Amount.IsZero())

	// Pending deposit settled by the sweeper.
	pending, err := svc.EnqueueDeposit(ctx, ledger.MovementInput{
		Actor:         actor,
		AccountNumber: account.AccountNumber,
		Amount:        "15.00",
		Currency:      money.USD,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, pending.Status)

	result, err := svc.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Failed)

	settled, err := svc.GetTransaction(ctx, actor, pending.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, settled.Status)

	_, balance, err = svc.GetAccount(ctx, actor, account.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("15.00")))
}

func TestLedgerRepository_AggregateStats(t *testing.T) {
	repo, ctx := setupTest(t)
	svc, _ := newEngine(t, ctx, repo)

	userID := createTestUser(t, ctx)
	actor := ledger.Actor{UserID: userID}

	account, err := svc.OpenAccount(ctx, ledger.OpenAccountInput{
		OwnerID:  userID,
		Kind:     ledger.AccountKindSavings,
		Currency: money.USD,
	})
	require.NoError(t, err)

	for _, amount := range []string{"100.00", "50.00"} {
		_, err := svc.Deposit(ctx, ledger.MovementInput{
			Actor:         actor,
			AccountNumber: account.AccountNumber,
			Amount:        amount,
			Currency:      money.USD,
		})
		require.NoError(t, err)
	}
	_, err = svc.Withdraw(ctx, ledger.MovementInput{
		Actor:         actor,
		AccountNumber: account.AccountNumber,
		Amount:        "40.00",
		Currency:      money.USD,
	})
	require.NoError(t, err)

	stats, err := repo.AggregateUserStats(ctx, userID, ledger.Window{})
	require.NoError(t, err)
	require.Len(t, stats.Summary, 1)
	assert.Equal(t, "USD", stats.Summary[0].Currency)
	assert.Equal(t, int64(3), stats.Summary[0].Count)
	assert.True(t, stats.Summary[0].Total.Equal(decimal.RequireFromString("190.00")))
	assert.Len(t, stats.ByKind, 2)

	accountStats, err := repo.AggregateAccountStats(ctx, account.AccountNumber, ledger.Window{})
	require.NoError(t, err)
	assert.True(t, accountStats.NetFlow.Incoming.Equal(decimal.RequireFromString("150.00")))
	assert.True(t, accountStats.NetFlow.Outgoing.Equal(decimal.RequireFromString("40.00")))
	assert.True(t, accountStats.NetFlow.Net.Equal(decimal.RequireFromString("110.00")))
	assert.NotEmpty(t, accountStats.ByKind)
	assert.NotEmpty(t, accountStats.DailyTrend)
}
