package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies Stripe charges without a minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

func minorExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount into the provider's smallest
// unit, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	exp := minorExponent(currency)
	return amount.Shift(exp).Round(0).IntPart()
}

func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -minorExponent(currency))
}

// DisplayAmount renders an amount with the currency's minor-unit precision.
func DisplayAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(minorExponent(currency))
}
