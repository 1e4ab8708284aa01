package utils

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ChargeTier is the service charge for transaction amounts in [Min, Max].
// A zero Max means the tier is open ended.
type ChargeTier struct {
	Min     decimal.Decimal `yaml:"min"`
	Max     decimal.Decimal `yaml:"max"`
	Flat    decimal.Decimal `yaml:"flat"`
	Percent decimal.Decimal `yaml:"percent"`
}

func (t ChargeTier) contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.Min) {
		return false
	}
	return t.Max.IsZero() || !amount.GreaterThan(t.Max)
}

// ChargeTable is an ordered set of non-overlapping tiers for one service.
type ChargeTable []ChargeTier

// NewChargeTable sorts tiers by Min and rejects overlapping or negative tiers.
func NewChargeTable(tiers []ChargeTier) (ChargeTable, error) {
	table := make(ChargeTable, len(tiers))
	copy(table, tiers)
	sort.Slice(table, func(i, j int) bool { return table[i].Min.LessThan(table[j].Min) })

	for i, t := range table {
		if t.Min.IsNegative() || t.Flat.IsNegative() || t.Percent.IsNegative() {
			return nil, fmt.Errorf("tier %d: values must not be negative", i)
		}
		if !t.Max.IsZero() && t.Max.LessThan(t.Min) {
			return nil, fmt.Errorf("tier %d: max %s is below min %s", i, t.Max, t.Min)
		}
		if i > 0 {
			prev := table[i-1]
			if prev.Max.IsZero() || !t.Min.GreaterThan(prev.Max) {
				return nil, fmt.Errorf("tier %d overlaps tier %d", i, i-1)
			}
		}
	}
	return table, nil
}

// Charge returns the service charge for amount, rounded to paise. Amounts
// that no tier covers carry no charge.
func (c ChargeTable) Charge(amount decimal.Decimal) decimal.Decimal {
	for _, t := range c {
		if t.contains(amount) {
			return RoundMoney(t.Flat.Add(Percent(amount, t.Percent)))
		}
	}
	return decimal.Zero
}
