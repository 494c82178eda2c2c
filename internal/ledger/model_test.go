package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balancedTransaction() *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		TransactionID: MintTransactionID(KindDeposit),
		Kind:          KindDeposit,
		InitiatorID:   uuid.New(),
		Amount:        amount("100"),
		Currency:      "USD",
		Status:        StatusCompleted,
		Entries: []Entry{
			{AccountID: uuid.New(), Side: Credit, Amount: amount("100")},
			{AccountID: uuid.New(), Side: Debit, Amount: amount("100")},
		},
	}
}

func TestTransaction_Validate(t *testing.T) {
	t.Run("balanced", func(t *testing.T) {
		require.NoError(t, balancedTransaction().Validate())
	})

	t.Run("unbalanced", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Entries[0].Amount = amount("99")
		assert.ErrorIs(t, tx.Validate(), ErrUnbalancedEntries)
	})

	t.Run("single entry", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Entries = tx.Entries[:1]
		assert.ErrorIs(t, tx.Validate(), ErrTooFewEntries)
	})

	t.Run("declared amount mismatch", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Amount = amount("50")
		assert.ErrorIs(t, tx.Validate(), ErrDeclaredAmountMismatch)
	})

	t.Run("zero entry amount", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Entries[0].Amount = decimal.Zero
		tx.Entries[1].Amount = decimal.Zero
		tx.Amount = decimal.Zero
		assert.ErrorIs(t, tx.Validate(), ErrNonPositiveAmount)
	})

	t.Run("bad side", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Entries[0].Side = "SIDEWAYS"
		assert.ErrorIs(t, tx.Validate(), ErrInvalidEntrySide)
	})

	t.Run("bad transaction id", func(t *testing.T) {
		tx := balancedTransaction()
		tx.TransactionID = "nope"
		assert.ErrorIs(t, tx.Validate(), ErrInvalidTransactionID)
	})

	t.Run("bad currency", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Currency = "BTC"
		assert.ErrorIs(t, tx.Validate(), ErrInvalidCurrency)
	})

	t.Run("multi entry balanced", func(t *testing.T) {
		tx := balancedTransaction()
		tx.Entries = []Entry{
			{AccountID: uuid.New(), Side: Debit, Amount: amount("70")},
			{AccountID: uuid.New(), Side: Debit, Amount: amount("30")},
			{AccountID: uuid.New(), Side: Credit, Amount: amount("100")},
		}
		require.NoError(t, tx.Validate())
	})
}

func TestTransactionStatus_CanTransitionTo(t *testing.T) {
	allowed := map[[2]TransactionStatus]bool{
		{StatusPending, StatusProcessing}:    true,
		{StatusPending, StatusCancelled}:     true,
		{StatusProcessing, StatusCompleted}:  true,
		{StatusProcessing, StatusFailed}:     true,
	}

	all := []TransactionStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			want := allowed[[2]TransactionStatus{from, to}]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestEntry_SignedAmount(t *testing.T) {
	id := uuid.New()
	credit := Entry{AccountID: id, Side: Credit, Amount: amount("25.50")}
	debit := Entry{AccountID: id, Side: Debit, Amount: amount("25.50")}

	assert.True(t, credit.SignedAmount().Equal(amount("25.50")))
	assert.True(t, debit.SignedAmount().Equal(amount("-25.50")))
}

func TestAccount_Validate(t *testing.T) {
	acc := &Account{
		ID:            uuid.New(),
		AccountNumber: MintAccountNumber(),
		OwnerID:       uuid.New(),
		Kind:          AccountKindSavings,
		Currency:      "EUR",
		Active:        true,
	}
	require.NoError(t, acc.Validate())

	bad := *acc
	bad.Kind = "CHECKING"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAccountKind)

	bad = *acc
	bad.OwnerID = uuid.Nil
	assert.ErrorIs(t, bad.Validate(), ErrMissingOwner)
}
