package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

const BaseCurrency = "USD"

type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Flag   string `json:"flag"`
}

var supported = map[string]Currency{
	"USD": {Code: "USD", Symbol: "$", Name: "US Dollar", Flag: "🇺🇸"},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro", Flag: "🇪🇺"},
	"GBP": {Code: "GBP", Symbol: "£", Name: "British Pound", Flag: "🇬🇧"},
	"NGN": {Code: "NGN", Symbol: "₦", Name: "Nigerian Naira", Flag: "🇳🇬"},
	"GHS": {Code: "GHS", Symbol: "GH₵", Name: "Ghanaian Cedi", Flag: "🇬🇭"},
	"KES": {Code: "KES", Symbol: "KSh", Name: "Kenyan Shilling", Flag: "🇰🇪"},
	"ZAR": {Code: "ZAR", Symbol: "R", Name: "South African Rand", Flag: "🇿🇦"},
	"CAD": {Code: "CAD", Symbol: "CA$", Name: "Canadian Dollar", Flag: "🇨🇦"},
	"AUD": {Code: "AUD", Symbol: "A$", Name: "Australian Dollar", Flag: "🇦🇺"},
	"INR": {Code: "INR", Symbol: "₹", Name: "Indian Rupee", Flag: "🇮🇳"},
	"JPY": {Code: "JPY", Symbol: "¥", Name: "Japanese Yen", Flag: "🇯🇵"},
}

// countryCurrency maps ISO 3166-1 alpha-2 codes to a supported currency.
var countryCurrency = map[string]string{
	"US": "USD",
	"GB": "GBP",
	"NG": "NGN",
	"GH": "GHS",
	"KE": "KES",
	"ZA": "ZAR",
	"CA": "CAD",
	"AU": "AUD",
	"IN": "INR",
	"JP": "JPY",
	// eurozone
	"DE": "EUR", "FR": "EUR", "ES": "EUR", "IT": "EUR", "NL": "EUR", "IE": "EUR",
	"PT": "EUR", "BE": "EUR", "AT": "EUR", "FI": "EUR", "GR": "EUR", "LU": "EUR",
}

// staticRates is the bundled fallback table, relative to USD.
var staticRates = map[string]string{
	"USD": "1",
	"EUR": "0.92",
	"GBP": "0.79",
	"NGN": "1550",
	"GHS": "15.5",
	"KES": "129",
	"ZAR": "18.4",
	"CAD": "1.37",
	"AUD": "1.52",
	"INR": "83.5",
	"JPY": "151",
}

func Supported() []Currency {
	out := make([]Currency, 0, len(supported))
	for _, code := range []string{"USD", "EUR", "GBP", "NGN", "GHS", "KES", "ZAR", "CAD", "AUD", "INR", "JPY"} {
		out = append(out, supported[code])
	}
	return out
}

func Lookup(code string) (Currency, bool) {
	c, ok := supported[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// ForCountry returns the currency for a country code and whether the country
// is known.
func ForCountry(country string) (string, bool) {
	code, ok := countryCurrency[strings.ToUpper(strings.TrimSpace(country))]
	return code, ok
}

// StaticRates returns a fresh copy of the bundled table.
func StaticRates() RateTable {
	t := make(RateTable, len(staticRates))
	for code, r := range staticRates {
		t[code] = decimal.RequireFromString(r)
	}
	return t
}
