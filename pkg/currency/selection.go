package currency

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Selection is the per-request currency context passed into every pricing
// call. It is a value; nothing in it is shared between requests.
type Selection struct {
	Selected    string
	Local       string
	Rates       RateTable
	Now         time.Time
	PromoEndsAt time.Time

	promo       decimal.Decimal
	zeroDecimal map[string]bool
}

type FormatOptions struct {
	// Currency overrides the selected currency.
	Currency string
	// NoDiscount suppresses the launch special.
	NoDiscount bool
}

// IsLocalCurrency reports whether the selected currency is the one detected
// for the visitor's location.
func (s Selection) IsLocalCurrency() bool {
	return s.Local != "" && strings.EqualFold(s.Selected, s.Local)
}

// IsLaunchSpecialActive reports whether the promotion is running: strictly
// before the end date and with a discounting multiplier.
func (s Selection) IsLaunchSpecialActive() bool {
	if s.PromoEndsAt.IsZero() || !s.promo.IsPositive() || !s.promo.LessThan(decimal.NewFromInt(1)) {
		return false
	}
	return s.Now.Before(s.PromoEndsAt)
}

// For returns a copy of the selection with another currency selected.
func (s Selection) For(code string) Selection {
	if code != "" {
		s.Selected = strings.ToUpper(code)
	}
	return s
}

// ConvertPrice converts a base-currency amount into target.
func (s Selection) ConvertPrice(amount decimal.Decimal, target string) decimal.Decimal {
	return convert(s.Rates, amount, target)
}

// PriceValue is the numeric value FormatPrice renders: converted, then
// discounted when the launch special applies to the target currency.
func (s Selection) PriceValue(amount decimal.Decimal, opts FormatOptions) decimal.Decimal {
	target := s.For(opts.Currency)
	value := target.ConvertPrice(amount, target.Selected)
	if !opts.NoDiscount && target.IsLocalCurrency() && target.IsLaunchSpecialActive() {
		value = value.Mul(s.promo)
	}
	return value
}

// FormatPrice converts and renders a base-currency amount.
func (s Selection) FormatPrice(amount decimal.Decimal, opts FormatOptions) string {
	target := s.For(opts.Currency).Selected
	return s.FormatAmount(s.PriceValue(amount, opts), target)
}

// FormatAmount renders an amount already expressed in code.
func (s Selection) FormatAmount(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(code)
	places := s.places(code)
	symbol := code + " "
	if c, ok := Lookup(code); ok {
		symbol = c.Symbol
	}
	f, _ := amount.Round(places).Float64()
	p := message.NewPrinter(language.English)
	return symbol + p.Sprintf(fmt.Sprintf("%%.%df", places), f)
}

// places is the number of decimals shown for code.
func (s Selection) places(code string) int32 {
	if s.zeroDecimal[strings.ToUpper(code)] {
		return 0
	}
	return 2
}

func convert(rates RateTable, amount decimal.Decimal, target string) decimal.Decimal {
	rate, ok := rates.Rate(target)
	if !ok {
		return amount
	}
	return amount.Mul(rate)
}
