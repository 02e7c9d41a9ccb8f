// Package types provides common value types.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyScale is the number of decimal places a price is stored with.
const MoneyScale = 2

// NewMoneyFromString parses a monetary value.
func NewMoneyFromString(s string) (Money, error) {
	m, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return m, nil
}

// MustMoney parses a monetary value and panics on error.
// Use only for constants.
func MustMoney(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromMinor converts minor units (cents) to Money.
func MoneyFromMinor(minor int64) Money {
	return decimal.New(minor, -MoneyScale)
}

// HasMoneyScale reports whether m fits in MoneyScale decimal places.
func HasMoneyScale(m Money) bool {
	return m.Equal(m.Round(MoneyScale))
}
