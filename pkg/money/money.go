// Package money renders integer minor-unit amounts.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FromCents converts minor units to a two-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}

// ToCents rounds a decimal amount to minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Format renders cents as "12.50 USD". An empty currency renders the amount alone.
func Format(cents int64, currency string) string {
	amount := FromCents(cents).StringFixed(2)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}
