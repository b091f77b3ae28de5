package billing

const IntervalMonth = "month"

// SubscriptionPlan is the priced schedule a student subscribes to.
type SubscriptionPlan struct {
	ID                   string                    `json:"id"`
	CourseID             uint                      `json:"courseId"`
	CourseName           string                    `json:"courseName"`
	BillingCalculation   MonthlyBillingCalculation `json:"billingCalculation"`
	SessionCustomization SessionCustomization      `json:"sessionCustomization"`
	Currency             string                    `json:"currency"`
	Interval             string                    `json:"interval"`
	TrialPeriodDays      *int64                    `json:"trialPeriodDays,omitempty"`
	PreferredSchedule    *PreferredSchedule        `json:"preferredSchedule,omitempty"`
}

// PreferredSchedule is when the student would like sessions to happen. It
// informs scheduling only and never changes the price.
type PreferredSchedule struct {
	TimeZone       string   `json:"timeZone"`
	DaysOfWeek     []string `json:"daysOfWeek"`
	PreferredTimes []string `json:"preferredTimes"`
}

// IsZero reports whether nothing was filled in.
func (p *PreferredSchedule) IsZero() bool {
	return p == nil || (p.TimeZone == "" && len(p.DaysOfWeek) == 0 && len(p.PreferredTimes) == 0)
}
