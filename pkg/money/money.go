package money

// Package money defines the monetary types used throughout the ledger.
// All amounts are arbitrary-precision decimals; binary floating point is
// never used on the ledger path.

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code supported by the ledger.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	CHF Currency = "CHF"
	AUD Currency = "AUD"
	CNY Currency = "CNY"
	INR Currency = "INR"
	NGN Currency = "NGN"
)

// AllCurrencies returns every supported currency.
func AllCurrencies() []Currency {
	return []Currency{USD, EUR, GBP, JPY, CAD, CHF, AUD, CNY, INR, NGN}
}

// IsValid reports whether the currency is supported.
func (c Currency) IsValid() bool {
	switch c {
	case USD, EUR, GBP, JPY, CAD, CHF, AUD, CNY, INR, NGN:
		return true
	}
	return false
}

const (
	// DefaultScale is the maximum number of fractional digits accepted on
	// operation inputs.
	DefaultScale = 2

	// DefaultMaxUnits is the maximum whole-unit magnitude accepted on
	// operation inputs (1e11).
	DefaultMaxUnits = "100000000000"
)

// Limits bounds the amounts accepted at the engine boundary.
type Limits struct {
	MaxUnits decimal.Decimal
	Scale    int32
}

// DefaultLimits returns the standard amount limits.
func DefaultLimits() Limits {
	return Limits{
		MaxUnits: decimal.RequireFromString(DefaultMaxUnits),
		Scale:    DefaultScale,
	}
}

// Zero is the canonical zero amount.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// Parse parses a positive operation amount, enforcing the given limits.
func Parse(s string, limits Limits) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if err := Validate(d, limits); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// Validate checks that an amount is positive, within scale, and within the
// configured magnitude bound.
func Validate(d decimal.Decimal, limits Limits) error {
	if d.Sign() <= 0 {
		return fmt.Errorf("amount must be positive, got %s", d.String())
	}
	if -d.Exponent() > limits.Scale {
		return fmt.Errorf("amount %s exceeds %d decimal places", d.String(), limits.Scale)
	}
	if d.GreaterThan(limits.MaxUnits) {
		return fmt.Errorf("amount %s exceeds maximum of %s", d.String(), limits.MaxUnits.String())
	}
	return nil
}

// Format renders an amount with at least two fractional digits for display.
func Format(d decimal.Decimal) string {
	if -d.Exponent() > DefaultScale {
		return d.String()
	}
	return d.StringFixed(DefaultScale)
}
