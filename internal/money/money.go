// Package money fixes the monetary arithmetic conventions for the ledger.
// All amounts are exact base-10 decimals; binary floating point never touches
// a monetary value. Balance comparisons use a one-cent tolerance to absorb
// rounding residue from multi-line allocations, while entry-level balance
// checks remain exact.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the smallest currency subunit. "Effectively zero" and
// "effectively balanced" checks compare against it, never against exact zero.
var Tolerance = decimal.New(1, -2)

// Zero returns the zero amount.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// Parse converts a decimal string into an amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse converts a trusted literal into an amount and panics on failure.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt converts whole currency units into an amount.
func FromInt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders an amount as a fixed two-decimal-place string. Every
// externally visible amount goes through here.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Equal reports exact equality. Entry-level debit/credit balance uses this,
// not the tolerance.
func Equal(a, b decimal.Decimal) bool {
	return a.Equal(b)
}

// WithinTolerance reports whether d is zero at the one-cent tolerance.
func WithinTolerance(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(Tolerance)
}

// Balanced reports whether debit and credit totals agree at the tolerance.
func Balanced(debit, credit decimal.Decimal) bool {
	return WithinTolerance(debit.Sub(credit))
}

// Sum adds amounts without intermediate rounding.
func Sum(vals ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(v)
	}
	return total
}

// Percent returns part as a percentage of whole, rounded to two places.
// A zero whole yields zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}
