package services

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are charged in whole units by the processor.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// maxAmount bounds major-unit amounts to what the ledger's NUMERIC(14,2)
// column holds.
var maxAmount = decimal.New(1, 12)

// withinLedgerPrecision reports whether a major-unit amount fits the ledger.
func withinLedgerPrecision(amount decimal.Decimal) bool {
	return amount.LessThan(maxAmount)
}

func minorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return 0
	}
	return 2
}

// ParseAmount accepts a positive decimal amount in major units.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, common.Invalid("amount must be a positive number")
	}
	return d, nil
}

// MinorUnits converts a major-unit amount to the processor's integer
// representation, rounding half away from zero.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	minor := amount.Shift(minorUnitExponent(currency)).Round(0)
	if !minor.IsPositive() {
		return 0, common.Invalid("amount rounds to zero")
	}
	if !minor.BigInt().IsInt64() || !withinLedgerPrecision(minor.Shift(-minorUnitExponent(currency))) {
		return 0, common.Invalid(fmt.Sprintf("amount %s is too large", amount.String()))
	}
	return minor.IntPart(), nil
}

// MajorUnits is the inverse of MinorUnits.
func MajorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -minorUnitExponent(currency))
}
