// Package money normalizes monetary amounts to fixed-point decimals with two
// fractional digits. Binary floating point is never used for money anywhere
// in the engine.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/soukworks/souk/fault"
)

// Amount is a fixed-point monetary value. It is an alias so that amounts
// interoperate directly with decimal arithmetic.
type Amount = decimal.Decimal

// Zero is the zero amount.
func Zero() Amount { return decimal.Zero }

// Parse reads a non-negative amount from its string form and normalizes it
// to two fractional digits, using banker-free half-up rounding.
func Parse(s string) (Amount, error) {
	var d, err = decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fault.Wrap(err, fault.InvalidInput, "parsing amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fault.New(fault.InvalidInput, "amount %q is negative", s)
	}
	return d.Round(2), nil
}

// MustParse is Parse which panics on error. It's for fixtures and tests.
func MustParse(s string) Amount {
	var d, err = Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders |a| with exactly two fractional digits, the canonical form
// stored in the database and fed to ledger content hashes.
func String(a Amount) string { return a.Round(2).StringFixed(2) }

// FromInt builds an Amount from a whole number of currency units.
func FromInt(units int64) Amount { return decimal.NewFromInt(units) }
