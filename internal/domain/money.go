package domain

import (
	"github.com/shopspring/decimal"
)

// Money represents a ledger amount in the smallest currency unit.
// Balances are plain non-negative int64 values; Money exists for display
// formatting and aggregate statistics, where fractional arithmetic is done
// with shopspring/decimal to avoid floating point errors.
type Money struct {
	Amount int64
}

// NewMoney creates a Money from an amount in the smallest unit.
func NewMoney(amount int64) Money {
	return Money{Amount: amount}
}

// ToDecimal converts the amount to whole currency units
// (two fractional digits per unit).
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(100))
}

// FromDecimal converts whole currency units to the smallest unit,
// rounding toward zero.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

// Percent returns m as a percentage of total, rounded to two places.
// A zero total yields zero.
func (m Money) Percent(total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(m.Amount).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// String returns the amount formatted in whole currency units.
func (m Money) String() string {
	return m.ToDecimal().StringFixed(2)
}
