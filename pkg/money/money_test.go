package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

func TestCurrency_IsValid(t *testing.T) {
	for _, c := range money.AllCurrencies() {
		t.Run(string(c), func(t *testing.T) {
			assert.True(t, c.IsValid())
		})
	}

	assert.False(t, money.Currency("BTC").IsValid())
	assert.False(t, money.Currency("").IsValid())
	assert.False(t, money.Currency("usd").IsValid())
}

func TestParse_Valid(t *testing.T) {
	limits := money.DefaultLimits()

	tests := []struct {
		in   string
		want string
	}{
		{"100", "100"},
		{"100.00", "100"},
		{"0.01", "0.01"},
		{"99999999999.99", "99999999999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := money.Parse(tt.in, limits)
			require.NoError(t, err)
			assert.True(t, d.Equal(decimal.RequireFromString(tt.want)))
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	limits := money.DefaultLimits()

	tests := []string{
		"0",
		"-5",
		"0.001",       // too many decimal places
		"abc",
		"",
		"100000000001", // above max units
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := money.Parse(in, limits)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "100.00", money.Format(decimal.RequireFromString("100")))
	assert.Equal(t, "0.50", money.Format(decimal.RequireFromString("0.5")))
	assert.Equal(t, "70.00", money.Format(decimal.RequireFromString("70.00")))
}
