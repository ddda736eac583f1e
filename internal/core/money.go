// Package core holds the ledger domain: admins, products, debt lines,
// money handling and report shapes.
//
// Money is kept in integer cents everywhere below the API boundary so that
// SQL sums stay exact. Callers exchange amounts as decimal values.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// Upper bounds for a single price and a single debt line. They leave room for
// millions of maximal lines before a ledger sum can leave int64.
var (
	MaxPrice  = Money{Cents: 1_000_000_000_000}
	MaxAmount = Money{Cents: 100_000_000_000_000}
)

var maxPriceCents = decimal.NewFromInt(MaxPrice.Cents)

// MoneyFromDecimal converts a non-negative amount with at most two fractional
// digits, no larger than MaxPrice, to Money.
//
// Examples:
//
//	MoneyFromDecimal(70)     -> {7000}, nil
//	MoneyFromDecimal(12.5)   -> {1250}, nil
//	MoneyFromDecimal(1.005)  -> ErrInvalidPrice (sub-cent precision)
//	MoneyFromDecimal(-1)     -> ErrInvalidPrice
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidPrice
	}
	cents := d.Shift(2)
	if !cents.IsInteger() || cents.GreaterThan(maxPriceCents) {
		return Money{}, ErrInvalidPrice
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ValidatePrice rejects negative prices and prices above MaxPrice.
func ValidatePrice(m Money) error {
	if m.Cents < 0 || m.Cents > MaxPrice.Cents {
		return ErrInvalidPrice
	}
	return nil
}

// ParsePrice parses a user-entered price. Both dot (12.34) and comma (12,34)
// decimal separators are accepted. Zero is a valid price.
func ParsePrice(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidPrice
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidPrice
	}
	return MoneyFromDecimal(d)
}

// Decimal returns m in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Times multiplies m by q. ok is false when the result exceeds MaxAmount.
func (m Money) Times(q int) (Money, bool) {
	if q < 0 || m.Cents < 0 {
		return Money{}, false
	}
	if q != 0 && m.Cents > math.MaxInt64/int64(q) {
		return Money{}, false
	}
	amount := Money{Cents: m.Cents * int64(q)}
	if amount.Cents > MaxAmount.Cents {
		return Money{}, false
	}
	return amount, true
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// String formats m with two fixed decimals, e.g. "140.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
