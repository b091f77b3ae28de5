package billing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"livementor_backend/pkg/apperror"
)

// WeeksPerMonth is the flat approximation used to turn weekly hours into a
// monthly figure. Billing cycles are 28-31 days; prorating is not applied.
const WeeksPerMonth = 4

type SessionFormat string

const (
	OneOnOne   SessionFormat = "one-on-one"
	SmallGroup SessionFormat = "small-group"
	LargeGroup SessionFormat = "large-group"
)

var formatLabels = map[SessionFormat]string{
	OneOnOne:   "One-on-one",
	SmallGroup: "Small group",
	LargeGroup: "Large group",
}

func (f SessionFormat) Label() string {
	if l, ok := formatLabels[f]; ok {
		return l
	}
	return string(f)
}

// MultiplierTable maps a session format to its hourly price multiplier.
type MultiplierTable map[SessionFormat]float64

var DefaultMultipliers = MultiplierTable{
	OneOnOne:   1.0,
	SmallGroup: 0.6,
	LargeGroup: 0.4,
}

type SessionCustomization struct {
	SessionsPerWeek int           `json:"sessionsPerWeek"`
	HoursPerSession float64       `json:"hoursPerSession"`
	SessionFormat   SessionFormat `json:"sessionFormat"`
	PreferredDays   []string      `json:"preferredDays,omitempty"`
	TimeSlots       []string      `json:"timeSlots,omitempty"`
}

// HoursPerWeek is sessionsPerWeek x hoursPerSession.
func (s SessionCustomization) HoursPerWeek() decimal.Decimal {
	return decimal.NewFromInt(int64(s.SessionsPerWeek)).Mul(decimal.NewFromFloat(s.HoursPerSession))
}

// Bounds are the course-defined limits a customization must respect.
// A zero max means "no upper bound" for that field; TotalHoursLimit is the
// weekly cap and is always enforced when positive.
type Bounds struct {
	MinSessionsPerWeek int     `json:"minSessionsPerWeek"`
	MaxSessionsPerWeek int     `json:"maxSessionsPerWeek"`
	MinHoursPerSession float64 `json:"minHoursPerSession"`
	MaxHoursPerSession float64 `json:"maxHoursPerSession"`
	TotalHoursLimit    float64 `json:"totalHoursLimit"`
}

type Breakdown struct {
	BaseRate         string `json:"baseRate"`
	FormatAdjustment string `json:"formatAdjustment"`
	WeeklyHours      string `json:"weeklyHours"`
	MonthlyHours     string `json:"monthlyHours"`
	Total            string `json:"total"`
}

type MonthlyBillingCalculation struct {
	BaseHourlyRate          decimal.Decimal `json:"baseHourlyRate"`
	SessionFormatMultiplier decimal.Decimal `json:"sessionFormatMultiplier"`
	AdjustedHourlyRate      decimal.Decimal `json:"adjustedHourlyRate"`
	HoursPerWeek            decimal.Decimal `json:"hoursPerWeek"`
	HoursPerMonth           decimal.Decimal `json:"hoursPerMonth"`
	MonthlyTotal            decimal.Decimal `json:"monthlyTotal"`
	Currency                string          `json:"currency"`
	Breakdown               Breakdown       `json:"breakdown"`
}

// MonthlyTotalMinor is the monthly total in provider minor units.
func (c MonthlyBillingCalculation) MonthlyTotalMinor() int64 {
	return ToMinorUnits(c.MonthlyTotal, c.Currency)
}

// Validate checks a customization against course bounds and the multiplier
// table. It never touches anything outside its arguments.
func Validate(custom SessionCustomization, bounds Bounds, multipliers MultiplierTable) error {
	v := &apperror.ValidationError{}

	if _, ok := multipliers[custom.SessionFormat]; !ok {
		v.Add("sessionFormat", fmt.Sprintf("unsupported session format %q", custom.SessionFormat))
	}

	if custom.SessionsPerWeek <= 0 {
		v.Add("sessionsPerWeek", "must be at least 1")
	} else if custom.SessionsPerWeek < bounds.MinSessionsPerWeek {
		v.Add("sessionsPerWeek", fmt.Sprintf("must be at least %d", bounds.MinSessionsPerWeek))
	} else if bounds.MaxSessionsPerWeek > 0 && custom.SessionsPerWeek > bounds.MaxSessionsPerWeek {
		v.Add("sessionsPerWeek", fmt.Sprintf("must be at most %d", bounds.MaxSessionsPerWeek))
	}

	h := custom.HoursPerSession
	finite := !math.IsNaN(h) && !math.IsInf(h, 0)
	if !finite {
		v.Add("hoursPerSession", "must be a finite number")
	} else if custom.HoursPerSession <= 0 {
		v.Add("hoursPerSession", "must be greater than 0")
	} else if custom.HoursPerSession < bounds.MinHoursPerSession {
		v.Add("hoursPerSession", fmt.Sprintf("must be at least %s", trimFloat(bounds.MinHoursPerSession)))
	} else if bounds.MaxHoursPerSession > 0 && custom.HoursPerSession > bounds.MaxHoursPerSession {
		v.Add("hoursPerSession", fmt.Sprintf("must be at most %s", trimFloat(bounds.MaxHoursPerSession)))
	}

	if finite && bounds.TotalHoursLimit > 0 && custom.SessionsPerWeek > 0 && custom.HoursPerSession > 0 {
		limit := decimal.NewFromFloat(bounds.TotalHoursLimit)
		if custom.HoursPerWeek().GreaterThan(limit) {
			v.Add("hoursPerWeek", fmt.Sprintf("%s hours per week exceeds the course limit of %s",
				custom.HoursPerWeek().String(), limit.String()))
		}
	}

	return v.OrNil()
}

// ComputeMonthlyBilling turns a base hourly rate and a session
// customization into a monthly total and its breakdown. Every derived field
// is computed here from the same inputs.
func ComputeMonthlyBilling(
	baseHourlyRate decimal.Decimal,
	custom SessionCustomization,
	bounds Bounds,
	multipliers MultiplierTable,
	currency string,
) (MonthlyBillingCalculation, error) {
	if multipliers == nil {
		multipliers = DefaultMultipliers
	}
	if !baseHourlyRate.IsPositive() {
		return MonthlyBillingCalculation{}, apperror.Invalid("baseHourlyRate", "must be greater than 0")
	}
	if strings.TrimSpace(currency) == "" {
		return MonthlyBillingCalculation{}, apperror.Invalid("currency", "is required")
	}
	if err := Validate(custom, bounds, multipliers); err != nil {
		return MonthlyBillingCalculation{}, err
	}

	currency = strings.ToUpper(currency)
	multiplier := decimal.NewFromFloat(multipliers[custom.SessionFormat])
	adjusted := baseHourlyRate.Mul(multiplier)
	hoursPerWeek := custom.HoursPerWeek()
	hoursPerMonth := hoursPerWeek.Mul(decimal.NewFromInt(WeeksPerMonth))
	total := adjusted.Mul(hoursPerMonth)

	calc := MonthlyBillingCalculation{
		BaseHourlyRate:          baseHourlyRate,
		SessionFormatMultiplier: multiplier,
		AdjustedHourlyRate:      adjusted,
		HoursPerWeek:            hoursPerWeek,
		HoursPerMonth:           hoursPerMonth,
		MonthlyTotal:            total,
		Currency:                currency,
	}
	calc.Breakdown = buildBreakdown(calc, custom)
	return calc, nil
}

func buildBreakdown(c MonthlyBillingCalculation, custom SessionCustomization) Breakdown {
	money := func(d decimal.Decimal) string {
		return DisplayAmount(d, c.Currency) + " " + c.Currency
	}
	return Breakdown{
		BaseRate: fmt.Sprintf("Base rate: %s/hour", money(c.BaseHourlyRate)),
		FormatAdjustment: fmt.Sprintf("%s (x%s): %s/hour",
			custom.SessionFormat.Label(), c.SessionFormatMultiplier.String(), money(c.AdjustedHourlyRate)),
		WeeklyHours: fmt.Sprintf("%d sessions x %s hours = %s hours/week",
			custom.SessionsPerWeek, decimal.NewFromFloat(custom.HoursPerSession).String(), c.HoursPerWeek.String()),
		MonthlyHours: fmt.Sprintf("%s hours/week x %d weeks = %s hours/month",
			c.HoursPerWeek.String(), WeeksPerMonth, c.HoursPerMonth.String()),
		Total: fmt.Sprintf("%s hours x %s/hour = %s/month",
			c.HoursPerMonth.String(), money(c.AdjustedHourlyRate), money(c.MonthlyTotal)),
	}
}

func trimFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}
