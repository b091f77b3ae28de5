// Package enrollment sells one-time course access through hosted checkout
// and turns a paid checkout into exactly one enrollment.
package enrollment

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/email"
	"livementor_backend/pkg/logger"
	"livementor_backend/pkg/metrics"
	"livementor_backend/pkg/payment"
	"livementor_backend/pkg/storage"
)

// PriceTolerance is how far, in major units, a client-sent amount may drift
// from the server price before checkout is refused.
var PriceTolerance = decimal.NewFromInt(1)

type CourseStore interface {
	Get(ctx context.Context, id uint) (*model.Course, error)
}

type Store interface {
	CreatePending(ctx context.Context, p *model.PendingEnrollment) error
	ListPending(ctx context.Context, courseID uint, email string) ([]model.PendingEnrollment, error)
	DeletePending(ctx context.Context, id string) error
	IsEnrolled(ctx context.Context, courseID uint, email string) (bool, error)
	ListByEmail(ctx context.Context, email string) ([]model.Enrollment, error)
	Reconcile(ctx context.Context, sessionID, paymentIntentID string, enrolledAt time.Time) (*model.Enrollment, error)
	AssignTeacher(ctx context.Context, id, teacher string) (*model.Enrollment, error)
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Checkout is the provider surface used for one-time payments.
type Checkout interface {
	CreateCheckoutSession(ctx context.Context, in payment.CheckoutInput) (*payment.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*payment.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) (*payment.CheckoutSession, error)
}

type Converter interface {
	ConvertPrice(ctx context.Context, amount decimal.Decimal, target string) decimal.Decimal
}

type Notifier interface {
	SendEnrollmentConfirmedEmail(ctx context.Context, to string, data email.EnrollmentConfirmedData) error
}

type Archive interface {
	Store(ctx context.Context, r storage.Receipt) (string, error)
}

type Deps struct {
	Checkout    Checkout
	Courses     CourseStore
	Enrollments Store
	Rates       Converter
	Notifier    Notifier
	Receipts    Archive
	SuccessURL  string
	CancelURL   string
	Log         *zap.Logger
	Metrics     *metrics.Collector
}

type Service struct {
	checkout    Checkout
	courses     CourseStore
	enrollments Store
	rates       Converter
	notifier    Notifier
	receipts    Archive
	successURL  string
	cancelURL   string
	log         *zap.Logger
	metrics     *metrics.Collector
	now         func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		checkout:    d.Checkout,
		courses:     d.Courses,
		enrollments: d.Enrollments,
		rates:       d.Rates,
		notifier:    d.Notifier,
		receipts:    d.Receipts,
		successURL:  d.SuccessURL,
		cancelURL:   d.CancelURL,
		log:         logger.OrNop(d.Log),
		metrics:     d.Metrics,
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type Student struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type CheckoutResult struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

func (st Student) validate(v *apperror.ValidationError) {
	if strings.TrimSpace(st.Name) == "" {
		v.Add("name", "is required")
	}
	if strings.TrimSpace(st.Email) == "" {
		v.Add("email", "is required")
	} else if _, err := mail.ParseAddress(st.Email); err != nil {
		v.Add("email", "is not a valid email address")
	}
}

// Initiate opens a hosted checkout for a course. Every check runs before
// the provider is contacted; the pending record is written after.
func (s *Service) Initiate(ctx context.Context, courseID uint, student Student, amount decimal.Decimal, code string) (*CheckoutResult, error) {
	v := &apperror.ValidationError{}
	student.validate(v)
	if !amount.IsPositive() {
		v.Add("amount", "must be greater than 0")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	student.Email = strings.ToLower(strings.TrimSpace(student.Email))

	course, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.Active {
		return nil, apperror.Invalid("courseId", "course is not open for enrollment")
	}
	if !course.HasCapacity() {
		return nil, apperror.Invalid("courseId", "course is full")
	}

	price, code, err := s.expectedPrice(ctx, course, code)
	if err != nil {
		return nil, err
	}
	if amount.Sub(price).Abs().GreaterThan(PriceTolerance) {
		s.metrics.Enrollment("checkout", "price_mismatch")
		return nil, apperror.Invalid("amount", "price has changed, please refresh and try again")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, course.ID, student.Email)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, apperror.Invalid("email", "already enrolled in this course")
	}

	minor := billing.ToMinorUnits(price, code)
	reuse, err := s.settlePending(ctx, course.ID, student.Email, minor, code)
	if err != nil {
		return nil, err
	}
	if reuse != nil {
		s.metrics.Enrollment("checkout", "reused")
		s.log.Info("checkout reused",
			zap.Uint("course", course.ID),
			zap.String("session", reuse.ID))
		return &CheckoutResult{CheckoutURL: reuse.URL, SessionID: reuse.ID}, nil
	}

	courseKey := strconv.FormatUint(uint64(course.ID), 10)
	session, err := s.checkout.CreateCheckoutSession(ctx, payment.CheckoutInput{
		ProductName:       course.Title,
		Description:       course.Instructor,
		Currency:          code,
		UnitAmount:        minor,
		CustomerEmail:     student.Email,
		ClientReferenceID: courseKey,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		Metadata: map[string]string{
			"course_id":    courseKey,
			"student_name": student.Name,
		},
	})
	if err != nil {
		s.metrics.Enrollment("checkout", "provider_error")
		return nil, err
	}

	pending := &model.PendingEnrollment{
		CourseID:          course.ID,
		StudentName:       strings.TrimSpace(student.Name),
		Email:             student.Email,
		Phone:             student.Phone,
		CheckoutSessionID: session.ID,
		Amount:            price,
		Currency:          code,
		Status:            model.PendingStatus,
	}
	if err := s.enrollments.CreatePending(ctx, pending); err != nil {
		s.log.Error("store pending enrollment failed", zap.String("session", session.ID), zap.Error(err))
		return nil, err
	}

	s.metrics.Enrollment("checkout", "ok")
	s.log.Info("checkout started",
		zap.Uint("course", course.ID),
		zap.String("session", session.ID))
	return &CheckoutResult{CheckoutURL: session.URL, SessionID: session.ID}, nil
}

// settlePending makes sure at most one checkout per student and course can
// be paid. An open checkout for the same amount is handed back for reuse;
// one at a different amount is expired first. A checkout that was already
// completed blocks a new one until its webhook lands.
func (s *Service) settlePending(ctx context.Context, courseID uint, addr string, minor int64, code string) (*payment.CheckoutSession, error) {
	pending, err := s.enrollments.ListPending(ctx, courseID, addr)
	if err != nil {
		return nil, err
	}

	var reuse *payment.CheckoutSession
	for _, p := range pending {
		session, err := s.checkout.GetCheckoutSession(ctx, p.CheckoutSessionID)
		switch {
		case errors.Is(err, payment.ErrNotFound):
			session = &payment.CheckoutSession{ID: p.CheckoutSessionID, Status: payment.CheckoutExpired}
		case err != nil:
			return nil, err
		}

		switch {
		case session.Status == payment.CheckoutComplete || session.PaymentStatus == payment.CheckoutPaid:
			s.metrics.Enrollment("checkout", "in_progress")
			return nil, apperror.Invalid("email", "payment for this course was received and is being confirmed")
		case session.Status == payment.CheckoutOpen && reuse == nil &&
			session.AmountTotal == minor && strings.EqualFold(session.Currency, code):
			reuse = session
			continue
		case session.Status == payment.CheckoutOpen:
			if _, err := s.checkout.ExpireCheckoutSession(ctx, session.ID); err != nil {
				return nil, err
			}
		}

		if err := s.enrollments.DeletePending(ctx, p.ID); err != nil {
			return nil, err
		}
		s.log.Debug("dropped superseded checkout", zap.String("session", p.CheckoutSessionID))
	}
	return reuse, nil
}

// expectedPrice is the course price in the requested currency.
func (s *Service) expectedPrice(ctx context.Context, course *model.Course, code string) (decimal.Decimal, string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || code == course.Currency {
		return course.Price, course.Currency, nil
	}
	if s.rates == nil {
		return decimal.Zero, "", apperror.Invalid("currency", "course is sold in "+course.Currency)
	}
	return s.rates.ConvertPrice(ctx, course.Price, code).Round(2), code, nil
}

// Confirm converts a paid checkout into an enrollment. A second call for the
// same session fails and leaves the single enrollment in place.
func (s *Service) Confirm(ctx context.Context, sessionID string) (*model.Enrollment, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperror.Invalid("sessionId", "is required")
	}

	session, err := s.checkout.GetCheckoutSession(ctx, sessionID)
	if errors.Is(err, payment.ErrNotFound) {
		return nil, apperror.NotFound("checkout session", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, session)
}

// ConfirmFromEvent applies a checkout.session.completed or
// async_payment_succeeded webhook. Sessions that were already confirmed, and
// completed sessions whose delayed payment has not settled yet, are
// acknowledged without error.
func (s *Service) ConfirmFromEvent(ctx context.Context, ev *payment.Event) error {
	if ev.CheckoutSession == nil {
		return apperror.Invalid("data", "event carries no checkout session")
	}
	if ev.CheckoutSession.PaymentStatus != payment.CheckoutPaid {
		s.metrics.Enrollment("confirm", "awaiting_payment")
		s.log.Info("checkout awaiting payment",
			zap.String("session", ev.CheckoutSession.ID),
			zap.String("event", ev.Type),
			zap.String("payment_status", ev.CheckoutSession.PaymentStatus))
		return nil
	}
	_, err := s.reconcile(ctx, ev.CheckoutSession)
	if apperror.IsNotFound(err) {
		s.log.Info("checkout already reconciled", zap.String("session", ev.CheckoutSession.ID))
		return nil
	}
	return err
}

func (s *Service) reconcile(ctx context.Context, session *payment.CheckoutSession) (*model.Enrollment, error) {
	if session.PaymentStatus != payment.CheckoutPaid {
		s.metrics.Enrollment("confirm", "unpaid")
		return nil, apperror.Invalid("sessionId", "payment has not been completed")
	}

	enrollment, err := s.enrollments.Reconcile(ctx, session.ID, session.PaymentIntentID, s.now().UTC())
	if err != nil {
		s.metrics.Enrollment("confirm", "rejected")
		if !apperror.IsNotFound(err) {
			s.log.Error("paid checkout could not be reconciled, refund may be needed",
				zap.String("session", session.ID),
				zap.String("payment_intent", session.PaymentIntentID),
				zap.String("email", session.CustomerEmail),
				zap.Error(err))
		}
		return nil, err
	}
	s.metrics.Enrollment("confirm", "ok")
	s.log.Info("enrollment confirmed",
		zap.String("enrollment", enrollment.ID),
		zap.Uint("course", enrollment.CourseID))

	s.afterConfirm(ctx, enrollment)
	return enrollment, nil
}

// afterConfirm sends the confirmation email and archives the receipt. The
// enrollment is already committed, so failures are only logged.
func (s *Service) afterConfirm(ctx context.Context, e *model.Enrollment) {
	title := ""
	if course, err := s.courses.Get(ctx, e.CourseID); err == nil {
		title = course.Title
	}
	amount := billing.DisplayAmount(e.Amount, e.Currency) + " " + e.Currency

	if s.notifier != nil {
		err := s.notifier.SendEnrollmentConfirmedEmail(ctx, e.Email, email.EnrollmentConfirmedData{
			StudentName:  e.StudentName,
			CourseTitle:  title,
			Amount:       amount,
			EnrollmentID: e.ID,
			EnrolledAt:   e.EnrolledAt,
		})
		if err != nil {
			s.log.Warn("enrollment email failed", zap.String("enrollment", e.ID), zap.Error(err))
		}
	}

	if s.receipts != nil {
		url, err := s.receipts.Store(ctx, storage.Receipt{
			EnrollmentID:      e.ID,
			CourseID:          e.CourseID,
			CourseTitle:       title,
			StudentName:       e.StudentName,
			Email:             e.Email,
			Amount:            billing.DisplayAmount(e.Amount, e.Currency),
			Currency:          e.Currency,
			CheckoutSessionID: e.CheckoutSessionID,
			PaymentIntentID:   e.PaymentIntentID,
			EnrolledAt:        e.EnrolledAt,
		})
		if err != nil {
			s.log.Warn("receipt archive failed", zap.String("enrollment", e.ID), zap.Error(err))
		} else {
			s.log.Debug("receipt archived", zap.String("enrollment", e.ID), zap.String("url", url))
		}
	}
}

func (s *Service) ListForStudent(ctx context.Context, email string) ([]model.Enrollment, error) {
	return s.enrollments.ListByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Service) AssignTeacher(ctx context.Context, enrollmentID, teacher string) (*model.Enrollment, error) {
	teacher = strings.TrimSpace(teacher)
	if teacher == "" {
		return nil, apperror.Invalid("teacher", "is required")
	}
	return s.enrollments.AssignTeacher(ctx, enrollmentID, teacher)
}

// SweepStalePending drops pending records whose checkout was abandoned.
func (s *Service) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.enrollments.DeletePendingBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("swept stale pending enrollments", zap.Int64("count", n))
	}
	return n, nil
}
