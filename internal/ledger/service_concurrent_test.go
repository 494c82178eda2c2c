package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	apperrors "github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/shared/errors"
)

func TestConcurrentDeposits(t *testing.T) {
	f := newFixture(t)
	acc := f.openAccount(t, f.user, ledger.AccountKindSavings)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Deposit(context.Background(), ledger.MovementInput{
				Actor:         f.user,
				AccountNumber: acc.AccountNumber,
				Amount:        "10.00",
				Currency:      "USD",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, f.balanceOf(t, f.user, acc.AccountNumber).Equal(decimal.RequireFromString("200")))
	assert.True(t, f.allBalancesSum(t).IsZero())
}

// Concurrent withdrawals racing for the same funds: exactly as many succeed
// as the balance covers, and the balance never goes negative.
func TestConcurrentWithdrawals_NoOverdraft(t *testing.T) {
	f := newFixture(t)
	acc := f.openAccount(t, f.user, ledger.AccountKindSavings)
	f.deposit(t, f.user, acc.AccountNumber, "50.00")

	const workers = 10 // each tries to take 10.00; only 5 can win
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Withdraw(context.Background(), ledger.MovementInput{
				Actor:         f.user,
				AccountNumber: acc.AccountNumber,
				Amount:        "10.00",
				Currency:      "USD",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, refused := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperrors.IsCode(err, apperrors.ErrCodeInsufficientFunds):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, refused)
	assert.True(t, f.balanceOf(t, f.user, acc.AccountNumber).IsZero())
	assert.True(t, f.allBalancesSum(t).IsZero())
}

// Opposing transfers between the same pair of accounts must neither
// deadlock nor lose money.
func TestConcurrentOpposingTransfers(t *testing.T) {
	f := newFixture(t)
	a := f.openAccount(t, f.user, ledger.AccountKindSavings)
	b := f.openAccount(t, f.user, ledger.AccountKindSavings)
	f.deposit(t, f.user, a.AccountNumber, "100.00")
	f.deposit(t, f.user, b.AccountNumber, "100.00")

	const rounds = 10
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := f.svc.Transfer(context.Background(), ledger.TransferInput{
				Actor:             f.user,
				FromAccountNumber: a.AccountNumber,
				ToAccountNumber:   b.AccountNumber,
				Amount:            "1.00",
				Currency:          "USD",
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := f.svc.Transfer(context.Background(), ledger.TransferInput{
				Actor:             f.user,
				FromAccountNumber: b.AccountNumber,
				ToAccountNumber:   a.AccountNumber,
				Amount:            "1.00",
				Currency:          "USD",
			})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	balA := f.balanceOf(t, f.user, a.AccountNumber)
	balB := f.balanceOf(t, f.user, b.AccountNumber)
	assert.True(t, balA.Equal(decimal.RequireFromString("100")), "got %s", balA)
	assert.True(t, balB.Equal(decimal.RequireFromString("100")), "got %s", balB)
	assert.True(t, f.allBalancesSum(t).IsZero())
}

// A reversal racing a spend of the same funds: either the reversal wins and
// the spend fails, or the spend wins and the reversal is refused, but the
// books always balance.
func TestConcurrentReversalAndSpend(t *testing.T) {
	f := newFixture(t)
	acc := f.openAccount(t, f.user, ledger.AccountKindSavings)
	dep := f.deposit(t, f.user, acc.AccountNumber, "100.00")

	var wg sync.WaitGroup
	wg.Add(2)
	var revErr, wdrErr error
	go func() {
		defer wg.Done()
		_, revErr = f.svc.Reverse(context.Background(), ledger.ReversalInput{
			Actor:                 f.admin,
			OriginalTransactionID: dep.TransactionID,
			Reason:                "dispute",
		})
	}()
	go func() {
		defer wg.Done()
		_, wdrErr = f.svc.Withdraw(context.Background(), ledger.MovementInput{
			Actor:         f.user,
			AccountNumber: acc.AccountNumber,
			Amount:        "100.00",
			Currency:      "USD",
		})
	}()
	wg.Wait()

	// Exactly one of the two may succeed.
	require.True(t, (revErr == nil) != (wdrErr == nil),
		"reversal err=%v withdrawal err=%v", revErr, wdrErr)
	assert.True(t, f.balanceOf(t, f.user, acc.AccountNumber).IsZero())
	assert.True(t, f.allBalancesSum(t).IsZero())
}
