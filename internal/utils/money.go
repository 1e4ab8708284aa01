package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision of every stored balance and ledger amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to 2 places, half away from zero (half-up for the
// positive amounts the ledger deals in).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// ParseAmount parses a user supplied rupee amount. It rejects negative
// values and anything with more than 2 decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	if !d.Equal(RoundMoney(d)) {
		return decimal.Zero, fmt.Errorf("amount %s has more than %d decimal places", s, MoneyPlaces)
	}
	return d, nil
}

// FormatINR renders an amount the way receipts and alerts show it.
func FormatINR(d decimal.Decimal) string {
	return "Rs " + d.StringFixed(MoneyPlaces)
}
