// Package subscription drives recurring mentoring plans: pricing a schedule,
// syncing it to the billing catalog, creating the provider subscription and
// keeping the local projection in step with provider events.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"livementor_backend/internal/model"
	"livementor_backend/internal/service/catalog"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/currency"
	"livementor_backend/pkg/email"
	"livementor_backend/pkg/logger"
	"livementor_backend/pkg/metrics"
	"livementor_backend/pkg/payment"
)

type CourseStore interface {
	Get(ctx context.Context, id uint) (*model.Course, error)
}

type SubscriptionStore interface {
	Get(ctx context.Context, id string) (*model.CourseSubscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.CourseSubscription, error)
	Save(ctx context.Context, sub *model.CourseSubscription) error
	TrialsEndingBetween(ctx context.Context, from, to time.Time) ([]model.CourseSubscription, error)
	MarkTrialReminded(ctx context.Context, id string) error
}

type SessionStore interface {
	Get(ctx context.Context, id string) (*model.SessionRecord, error)
	Create(ctx context.Context, rec *model.SessionRecord) error
	Save(ctx context.Context, rec *model.SessionRecord) error
	CountBetween(ctx context.Context, subscriptionID string, from, to time.Time, excludeID string) (int64, error)
}

// StudentStore caches the billing customer on the student row.
type StudentStore interface {
	SetBillingCustomerID(ctx context.Context, id uint, customerID string) error
}

// Converter turns a base-currency amount into another currency.
type Converter interface {
	ConvertPrice(ctx context.Context, amount decimal.Decimal, target string) decimal.Decimal
}

type Notifier interface {
	SendSubscriptionStartedEmail(ctx context.Context, to string, data email.SubscriptionStartedData) error
	SendSubscriptionCancelledEmail(ctx context.Context, to string, data email.SubscriptionCancelledData) error
	SendPaymentFailedEmail(ctx context.Context, to string, data email.PaymentFailedData) error
	SendTrialEndingEmail(ctx context.Context, to string, data email.TrialEndingData) error
}

type Deps struct {
	Provider      payment.Provider
	Catalog       *catalog.Service
	Courses       CourseStore
	Subscriptions SubscriptionStore
	Sessions      SessionStore
	Students      StudentStore
	Rates         Converter
	Notifier      Notifier
	Log           *zap.Logger
	Metrics       *metrics.Collector
	// DefaultTrialDays applies when a request carries no trial length.
	DefaultTrialDays int64
}

type Service struct {
	provider      payment.Provider
	catalog       *catalog.Service
	courses       CourseStore
	subscriptions SubscriptionStore
	sessions      SessionStore
	students      StudentStore
	rates         Converter
	notifier      Notifier
	log           *zap.Logger
	metrics       *metrics.Collector
	trialDays     int64
	now           func() time.Time
}

func NewService(d Deps) *Service {
	log := logger.OrNop(d.Log)
	cat := d.Catalog
	if cat == nil {
		cat = catalog.NewService(d.Provider, log, d.Metrics)
	}
	return &Service{
		provider:      d.Provider,
		catalog:       cat,
		courses:       d.Courses,
		subscriptions: d.Subscriptions,
		sessions:      d.Sessions,
		students:      d.Students,
		rates:         d.Rates,
		notifier:      d.Notifier,
		log:           log,
		metrics:       d.Metrics,
		trialDays:     d.DefaultTrialDays,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequest struct {
	CourseID             uint                         `json:"courseId"`
	StudentID            uint                         `json:"-"`
	StudentEmail         string                       `json:"studentEmail"`
	StudentName          string                       `json:"studentName"`
	StudentPhone         string                       `json:"studentPhone,omitempty"`
	BillingCustomerID    string                       `json:"-"`
	SessionCustomization billing.SessionCustomization `json:"sessionCustomization"`
	Currency             string                       `json:"currency"`
	PaymentMethodID      string                       `json:"paymentMethodId,omitempty"`
	TrialPeriodDays      *int64                       `json:"trialPeriodDays,omitempty"`
	CouponID             string                       `json:"couponId,omitempty"`
	Experience           string                       `json:"experience,omitempty"`
	Goals                string                       `json:"goals,omitempty"`
	PreferredSchedule    *billing.PreferredSchedule   `json:"preferredSchedule,omitempty"`
}

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRequiresAction Outcome = "requires_action"
	OutcomeIncomplete     Outcome = "incomplete"
)

type CreateResult struct {
	Outcome         Outcome
	Subscription    *model.CourseSubscription
	ClientSecret    string
	PaymentIntentID string
	Message         string
}

const maxTrialDays = 730

func (r *CreateRequest) validate() error {
	v := &apperror.ValidationError{}
	if r.CourseID == 0 {
		v.Add("courseId", "is required")
	}
	if strings.TrimSpace(r.StudentEmail) == "" {
		v.Add("studentEmail", "is required")
	} else if _, err := mail.ParseAddress(r.StudentEmail); err != nil {
		v.Add("studentEmail", "is not a valid email address")
	}
	if strings.TrimSpace(r.StudentName) == "" {
		v.Add("studentName", "is required")
	}
	if r.Currency != "" && !currency.IsSupported(r.Currency) {
		v.Add("currency", "unsupported currency "+strings.ToUpper(r.Currency))
	}
	if r.TrialPeriodDays != nil && (*r.TrialPeriodDays < 0 || *r.TrialPeriodDays > maxTrialDays) {
		v.Add("trialPeriodDays", "must be between 0 and "+strconv.Itoa(maxTrialDays))
	}
	if p := r.PreferredSchedule; !p.IsZero() {
		if p.TimeZone != "" {
			if _, err := time.LoadLocation(p.TimeZone); err != nil {
				v.Add("preferredSchedule.timeZone", "unknown time zone "+p.TimeZone)
			}
		}
		for _, d := range p.DaysOfWeek {
			if _, ok := weekdays[strings.ToLower(d)]; !ok {
				v.Add("preferredSchedule.daysOfWeek", "unknown day "+d)
				break
			}
		}
	}
	return v.OrNil()
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// maxMetadataValue is Stripe's limit on a metadata value.
const maxMetadataValue = 500

func clip(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxMetadataValue {
		return string(r[:maxMetadataValue])
	}
	return s
}

// subscriptionMetadata tags the provider subscription so webhooks and the
// dashboard can be traced back to the course, student and schedule.
func subscriptionMetadata(req CreateRequest, courseKey, priceKey string) map[string]string {
	md := map[string]string{
		"course_id":  courseKey,
		"student_id": strconv.FormatUint(uint64(req.StudentID), 10),
		"price_key":  priceKey,
	}
	if v := clip(req.Experience); v != "" {
		md["student_experience"] = v
	}
	if v := clip(req.Goals); v != "" {
		md["student_goals"] = v
	}
	if p := req.PreferredSchedule; !p.IsZero() {
		if p.TimeZone != "" {
			md["preferred_time_zone"] = p.TimeZone
		}
		if len(p.DaysOfWeek) > 0 {
			md["preferred_days"] = clip(strings.Join(p.DaysOfWeek, ","))
		}
		if len(p.PreferredTimes) > 0 {
			md["preferred_times"] = clip(strings.Join(p.PreferredTimes, ","))
		}
	}
	return md
}

// Quote prices a schedule for a course in the given currency without
// touching the billing provider.
func (s *Service) Quote(ctx context.Context, courseID uint, custom billing.SessionCustomization, code string) (*model.Course, billing.MonthlyBillingCalculation, error) {
	course, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, billing.MonthlyBillingCalculation{}, err
	}
	calc, err := s.price(ctx, course, custom, code)
	return course, calc, err
}

func (s *Service) price(ctx context.Context, course *model.Course, custom billing.SessionCustomization, code string) (billing.MonthlyBillingCalculation, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = course.Currency
	}
	rate := course.HourlyRate
	if !strings.EqualFold(code, course.Currency) && s.rates != nil {
		rate = s.rates.ConvertPrice(ctx, rate, code).Round(2)
	}
	return billing.ComputeMonthlyBilling(rate, custom, course.Bounds(), course.Multipliers(), code)
}

// Create runs the subscription flow in strict order. Everything up to the
// final provider subscription call is safe to retry; the subscription call
// itself is not.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	course, err := s.courses.Get(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.Active {
		return nil, apperror.Invalid("courseId", "course is not open for subscriptions")
	}

	calc, err := s.price(ctx, course, req.SessionCustomization, req.Currency)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.PaymentMethodID != "" {
		if err := s.provider.AttachPaymentMethod(ctx, customerID, req.PaymentMethodID); err != nil {
			return nil, err
		}
	}

	courseKey := strconv.FormatUint(uint64(course.ID), 10)
	product, err := s.catalog.EnsureProduct(ctx, course, nil)
	if err != nil {
		return nil, err
	}
	priceKey := catalog.PriceKey(course.ID, req.SessionCustomization, calc)
	price, err := s.catalog.EnsurePrice(ctx, product, priceKey, calc, map[string]string{
		"course_id":         courseKey,
		"session_format":    string(req.SessionCustomization.SessionFormat),
		"sessions_per_week": strconv.Itoa(req.SessionCustomization.SessionsPerWeek),
		"hours_per_session": decimal.NewFromFloat(req.SessionCustomization.HoursPerSession).String(),
	})
	if err != nil {
		return nil, err
	}

	trial := req.TrialPeriodDays
	if trial == nil && s.trialDays > 0 {
		trial = &s.trialDays
	}

	created, err := s.provider.CreateSubscription(ctx, payment.SubscriptionInput{
		CustomerID:      customerID,
		PriceID:         price.ID,
		TrialPeriodDays: trial,
		Coupon:          req.CouponID,
		Metadata:        subscriptionMetadata(req, courseKey, priceKey),
	})
	if err != nil {
		s.metrics.SubscriptionOutcome("provider_error")
		return nil, err
	}

	plan := billing.SubscriptionPlan{
		ID:                   priceKey,
		CourseID:             course.ID,
		CourseName:           course.Title,
		BillingCalculation:   calc,
		SessionCustomization: req.SessionCustomization,
		Currency:             calc.Currency,
		Interval:             billing.IntervalMonth,
		TrialPeriodDays:      trial,
	}
	if !req.PreferredSchedule.IsZero() {
		plan.PreferredSchedule = req.PreferredSchedule
	}
	sub := &model.CourseSubscription{
		ID:           created.ID,
		CourseID:     course.ID,
		StudentID:    req.StudentID,
		StudentEmail: strings.ToLower(req.StudentEmail),
		Plan:         datatypes.NewJSONType(plan),
	}
	applySnapshot(sub, created)

	// The provider object exists whatever happens here, so a failed local
	// write is logged rather than returned.
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		s.log.Error("persist subscription failed", zap.String("subscription", sub.ID), zap.Error(err))
	}

	result := classify(sub, created)
	s.metrics.SubscriptionOutcome(string(result.Outcome))
	s.log.Info("subscription created",
		zap.String("subscription", sub.ID),
		zap.String("status", string(sub.Status)),
		zap.String("price_key", priceKey))

	if result.Outcome == OutcomeSuccess {
		s.notify(ctx, "subscription started", func(n Notifier) error {
			return n.SendSubscriptionStartedEmail(ctx, sub.StudentEmail, email.SubscriptionStartedData{
				StudentName:  req.StudentName,
				CourseTitle:  course.Title,
				Schedule:     describeSchedule(req.SessionCustomization),
				MonthlyTotal: monthlyTotal(calc),
				TrialEnd:     sub.TrialEnd,
			})
		})
	}
	return result, nil
}

func (s *Service) ensureCustomer(ctx context.Context, req CreateRequest) (string, error) {
	if req.BillingCustomerID != "" {
		return req.BillingCustomerID, nil
	}

	customer, err := s.provider.FindCustomerByEmail(ctx, req.StudentEmail)
	if errors.Is(err, payment.ErrNotFound) {
		customer, err = s.provider.CreateCustomer(ctx, payment.CustomerInput{
			Email: strings.ToLower(req.StudentEmail),
			Name:  req.StudentName,
			Phone: req.StudentPhone,
			Metadata: map[string]string{
				"student_id": strconv.FormatUint(uint64(req.StudentID), 10),
			},
		})
	}
	if err != nil {
		return "", err
	}

	if req.StudentID != 0 && s.students != nil {
		if err := s.students.SetBillingCustomerID(ctx, req.StudentID, customer.ID); err != nil {
			s.log.Warn("cache billing customer failed", zap.Uint("student", req.StudentID), zap.Error(err))
		}
	}
	return customer.ID, nil
}

func classify(sub *model.CourseSubscription, created *payment.Subscription) *CreateResult {
	switch sub.Status {
	case model.StatusTrialing, model.StatusActive:
		return &CreateResult{Outcome: OutcomeSuccess, Subscription: sub, Message: "Subscription created successfully"}
	case model.StatusIncomplete:
		res := &CreateResult{
			Outcome:      OutcomeRequiresAction,
			Subscription: sub,
			Message:      "Payment requires additional confirmation",
		}
		if inv := created.LatestInvoice; inv != nil {
			res.ClientSecret = inv.ClientSecret
			res.PaymentIntentID = inv.PaymentIntentID
		}
		return res
	default:
		return &CreateResult{
			Outcome:      OutcomeIncomplete,
			Subscription: sub,
			Message:      "Subscription created with status " + string(sub.Status),
		}
	}
}

// applySnapshot copies provider-owned fields onto the local record.
func applySnapshot(sub *model.CourseSubscription, p *payment.Subscription) {
	if p.CustomerID != "" {
		sub.CustomerID = p.CustomerID
	}
	if status := model.SubscriptionStatus(p.Status); status.IsValid() {
		sub.Status = status
	}
	if !p.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = p.CurrentPeriodStart
	}
	if !p.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = p.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = p.CancelAtPeriodEnd
	if p.CanceledAt != nil {
		sub.CanceledAt = p.CanceledAt
	}
	if p.TrialStart != nil {
		sub.TrialStart = p.TrialStart
	}
	if p.TrialEnd != nil {
		sub.TrialEnd = p.TrialEnd
	}
	if p.UnitAmount != 0 {
		sub.PriceAmount = p.UnitAmount
	}
	if p.Currency != "" {
		sub.PriceCurrency = strings.ToUpper(p.Currency)
	}
	if p.LatestInvoice != nil {
		sub.LatestInvoice = toInvoice(p.LatestInvoice)
	}
	if sub.CreatedAt.IsZero() && !p.Created.IsZero() {
		sub.CreatedAt = p.Created
	}
}

func toInvoice(in *payment.Invoice) *model.SubscriptionInvoice {
	return &model.SubscriptionInvoice{
		ID:         in.ID,
		Status:     in.Status,
		AmountDue:  in.AmountDue,
		AmountPaid: in.AmountPaid,
		Currency:   in.Currency,
		HostedURL:  in.HostedURL,
		PDFURL:     in.PDFURL,
		Created:    in.Created,
	}
}

func monthlyTotal(calc billing.MonthlyBillingCalculation) string {
	return billing.DisplayAmount(calc.MonthlyTotal, calc.Currency) + " " + calc.Currency
}

func describeSchedule(c billing.SessionCustomization) string {
	return fmt.Sprintf("%d x %s h %s sessions per week",
		c.SessionsPerWeek, decimal.NewFromFloat(c.HoursPerSession).String(), c.SessionFormat.Label())
}

// notify runs a best-effort notification; failures are only logged.
func (s *Service) notify(ctx context.Context, what string, send func(Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := send(s.notifier); err != nil {
		s.log.Warn("notification failed", zap.String("notification", what), zap.Error(err))
	}
}
