package controller

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"livementor_backend/internal/middleware"
	"livementor_backend/internal/model"
	"livementor_backend/internal/service/subscription"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/logger"
)

type SubscriptionController struct {
	svc      *subscription.Service
	students StudentStore
	log      *zap.Logger
}

func NewSubscriptionController(svc *subscription.Service, students StudentStore, log *zap.Logger) *SubscriptionController {
	return &SubscriptionController{svc: svc, students: students, log: logger.OrNop(log)}
}

type StudentDetailsInput struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Experience string `json:"experience"`
	Goals      string `json:"goals"`
}

// PlanInput is the plan the client displayed. Its billingCalculation is
// ignored; the price is always recomputed from the course.
type PlanInput struct {
	ID                   string                        `json:"id"`
	CourseID             uint                          `json:"courseId"`
	Currency             string                        `json:"currency"`
	SessionCustomization *billing.SessionCustomization `json:"sessionCustomization"`
	TrialPeriodDays      *int64                        `json:"trialPeriodDays"`
}

type CreateSubscriptionInput struct {
	CourseID          uint                       `json:"courseId"`
	StudentDetails    *StudentDetailsInput       `json:"studentDetails"`
	Plan              *PlanInput                 `json:"plan"`
	PaymentMethodID   string                     `json:"paymentMethodId"`
	TrialPeriodDays   *int64                     `json:"trialPeriodDays"`
	CouponCode        string                     `json:"couponCode"`
	PreferredSchedule *billing.PreferredSchedule `json:"preferredSchedule"`

	// Flat form used by older clients.
	SessionCustomization *billing.SessionCustomization `json:"sessionCustomization"`
	Currency             string                        `json:"currency"`
	CouponID             string                        `json:"couponId"`
}

// toRequest resolves the nested plan against the flat fields. Top-level
// values win except for the session customization, which the plan owns.
func (in *CreateSubscriptionInput) toRequest(student *model.Student) (subscription.CreateRequest, error) {
	req := subscription.CreateRequest{
		CourseID:          in.CourseID,
		StudentID:         student.ID,
		StudentEmail:      student.Email,
		StudentName:       student.GetFullName(),
		StudentPhone:      student.PhoneNumber,
		BillingCustomerID: student.BillingCustomerID,
		Currency:          in.Currency,
		PaymentMethodID:   in.PaymentMethodID,
		TrialPeriodDays:   in.TrialPeriodDays,
		CouponID:          firstNonEmpty(in.CouponCode, in.CouponID),
		PreferredSchedule: in.PreferredSchedule,
	}

	custom := in.SessionCustomization
	if p := in.Plan; p != nil {
		if p.CourseID != 0 {
			if req.CourseID != 0 && req.CourseID != p.CourseID {
				return req, apperror.Invalid("plan.courseId", "does not match courseId")
			}
			req.CourseID = p.CourseID
		}
		if p.SessionCustomization != nil {
			custom = p.SessionCustomization
		}
		if req.Currency == "" {
			req.Currency = p.Currency
		}
		if req.TrialPeriodDays == nil {
			req.TrialPeriodDays = p.TrialPeriodDays
		}
	}
	if custom == nil {
		return req, apperror.Invalid("plan.sessionCustomization", "is required")
	}
	req.SessionCustomization = *custom

	// The account email is authoritative; details only fill gaps.
	if d := in.StudentDetails; d != nil {
		if strings.TrimSpace(req.StudentName) == "" {
			req.StudentName = strings.TrimSpace(d.FullName)
		}
		if req.StudentPhone == "" {
			req.StudentPhone = strings.TrimSpace(d.Phone)
		}
		req.Experience = d.Experience
		req.Goals = d.Goals
	}
	return req, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// CreateSubscription prices the requested schedule and starts a recurring
// subscription for the authenticated student.
func (h *SubscriptionController) CreateSubscription(c *fiber.Ctx) error {
	input := new(CreateSubscriptionInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	ctx := c.UserContext()
	student, err := h.students.Get(ctx, middleware.Claims(c).StudentID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	req, err := input.toRequest(student)
	if err != nil {
		return respondError(c, h.log, err)
	}
	res, err := h.svc.Create(ctx, req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	switch res.Outcome {
	case subscription.OutcomeSuccess:
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":      true,
			"subscription": res.Subscription,
			"message":      res.Message,
		})
	case subscription.OutcomeRequiresAction:
		return c.JSON(fiber.Map{
			"success":         false,
			"requiresAction":  true,
			"subscription":    res.Subscription,
			"clientSecret":    res.ClientSecret,
			"paymentIntentId": res.PaymentIntentID,
			"message":         res.Message,
		})
	default:
		return c.JSON(fiber.Map{
			"success":      false,
			"subscription": res.Subscription,
			"message":      res.Message,
		})
	}
}

// GetSubscriptions looks up one subscription or all of a customer's; exactly
// one of subscriptionId and customerId is required.
func (h *SubscriptionController) GetSubscriptions(c *fiber.Ctx) error {
	subscriptionID := c.Query("subscriptionId")
	customerID := c.Query("customerId")
	if (subscriptionID == "") == (customerID == "") {
		return badRequest(c, "Provide exactly one of subscriptionId or customerId")
	}

	ctx := c.UserContext()
	claims := middleware.Claims(c)

	if subscriptionID != "" {
		sub, err := h.svc.Retrieve(ctx, subscriptionID)
		if err != nil {
			return respondError(c, h.log, err)
		}
		if sub.StudentID != claims.StudentID {
			return respondError(c, h.log, apperror.NotFound("subscription", subscriptionID))
		}
		return c.JSON(fiber.Map{"subscription": sub})
	}

	student, err := h.students.Get(ctx, claims.StudentID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if student.BillingCustomerID != customerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to access this customer",
		})
	}

	subs, err := h.svc.ListForCustomer(ctx, customerID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

type CancelInput struct {
	AtPeriodEnd *bool `json:"atPeriodEnd"`
}

// CancelSubscription cancels at period end unless atPeriodEnd is false.
func (h *SubscriptionController) CancelSubscription(c *fiber.Ctx) error {
	input := new(CancelInput)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(input); err != nil {
			return badRequest(c, "Invalid input")
		}
	}

	var (
		sub *model.CourseSubscription
		err error
	)
	if input.AtPeriodEnd == nil || *input.AtPeriodEnd {
		sub, err = h.svc.CancelAtPeriodEnd(c.UserContext(), c.Params("id"))
	} else {
		sub, err = h.svc.CancelNow(c.UserContext(), c.Params("id"))
	}
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":      "Subscription cancelled",
		"subscription": sub,
	})
}

func (h *SubscriptionController) PauseSubscription(c *fiber.Ctx) error {
	sub, err := h.svc.Pause(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Subscription paused", "subscription": sub})
}

func (h *SubscriptionController) ResumeSubscription(c *fiber.Ctx) error {
	sub, err := h.svc.Resume(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Subscription resumed", "subscription": sub})
}

func (h *SubscriptionController) ScheduleSession(c *fiber.Ctx) error {
	input := new(subscription.ScheduleRequest)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	rec, err := h.svc.ScheduleSession(c.UserContext(), c.Params("id"), *input)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": rec})
}

type UpdateSessionInput struct {
	Action        string    `json:"action"`
	ScheduledDate time.Time `json:"scheduledDate"`
	Notes         string    `json:"notes"`
	Feedback      string    `json:"feedback"`
}

// UpdateSession applies one status change to a session.
func (h *SubscriptionController) UpdateSession(c *fiber.Ctx) error {
	input := new(UpdateSessionInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	ctx := c.UserContext()
	id := c.Params("id")

	var (
		rec *model.SessionRecord
		err error
	)
	switch input.Action {
	case "complete":
		rec, err = h.svc.CompleteSession(ctx, id, input.Notes, input.Feedback)
	case "missed":
		rec, err = h.svc.MarkMissed(ctx, id)
	case "cancel":
		rec, err = h.svc.CancelSession(ctx, id)
	case "reschedule":
		rec, err = h.svc.RescheduleSession(ctx, id, input.ScheduledDate)
	default:
		return respondError(c, h.log, apperror.Invalid("action", "must be one of complete, missed, cancel, reschedule"))
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"session": rec})
}
