package controller

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"livementor_backend/internal/model"
	"livementor_backend/internal/service/subscription"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/currency"
	"livementor_backend/pkg/logger"
)

const visitorCookie = "visitor_id"

type CourseLister interface {
	ListActive(ctx context.Context) ([]model.Course, error)
}

// PricingController serves currency detection and price display.
type PricingController struct {
	currency *currency.Service
	quotes   *subscription.Service
	courses  CourseLister
	log      *zap.Logger
}

func NewPricingController(cur *currency.Service, quotes *subscription.Service, courses CourseLister, log *zap.Logger) *PricingController {
	return &PricingController{currency: cur, quotes: quotes, courses: courses, log: logger.OrNop(log)}
}

// visitorID reads the visitor cookie, issuing one on first contact.
func visitorID(c *fiber.Ctx) string {
	if id := c.Cookies(visitorCookie); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return id
}

func (h *PricingController) selection(c *fiber.Ctx) currency.Selection {
	return h.currency.Detect(c.UserContext(), visitorID(c), c.IP())
}

func (h *PricingController) GetCurrency(c *fiber.Ctx) error {
	sel := h.selection(c)
	return c.JSON(fiber.Map{
		"selected":            sel.Selected,
		"local":               sel.Local,
		"isLocalCurrency":     sel.IsLocalCurrency(),
		"launchSpecialActive": sel.IsLaunchSpecialActive(),
		"currencies":          currency.Supported(),
	})
}

type SetCurrencyInput struct {
	Currency string `json:"currency"`
}

func (h *PricingController) SetCurrency(c *fiber.Ctx) error {
	input := new(SetCurrencyInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	if !h.currency.SetCurrency(c.UserContext(), visitorID(c), input.Currency) {
		return badRequest(c, "Unsupported currency")
	}
	return h.GetCurrency(c)
}

// ConvertPrice converts a base-currency amount for display.
func (h *PricingController) ConvertPrice(c *fiber.Ctx) error {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return badRequest(c, "amount must be a number")
	}

	sel := h.selection(c)
	opts := currency.FormatOptions{
		Currency:   c.Query("to"),
		NoDiscount: c.QueryBool("noDiscount", false),
	}
	if opts.Currency != "" && !currency.IsSupported(opts.Currency) {
		return badRequest(c, "Unsupported currency")
	}
	target := sel.For(opts.Currency)

	return c.JSON(fiber.Map{
		"currency":  target.Selected,
		"converted": target.ConvertPrice(amount, target.Selected).Round(2),
		"value":     sel.PriceValue(amount, opts).Round(2),
		"formatted": sel.FormatPrice(amount, opts),
		"discount":  !opts.NoDiscount && target.IsLocalCurrency() && target.IsLaunchSpecialActive(),
	})
}

// GetQuote prices a session schedule for a course without side effects.
func (h *PricingController) GetQuote(c *fiber.Ctx) error {
	courseID, err := strconv.ParseUint(c.Query("courseId"), 10, 32)
	if err != nil {
		return badRequest(c, "Invalid course ID")
	}
	custom := billing.SessionCustomization{
		SessionsPerWeek: c.QueryInt("sessionsPerWeek"),
		HoursPerSession: c.QueryFloat("hoursPerSession"),
		SessionFormat:   billing.SessionFormat(c.Query("sessionFormat", string(billing.OneOnOne))),
	}

	sel := h.selection(c)
	code := c.Query("currency", sel.Selected)

	course, calc, err := h.quotes.Quote(c.UserContext(), uint(courseID), custom, code)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"courseId":    course.ID,
		"courseName":  course.Title,
		"calculation": calc,
		"formatted":   sel.FormatAmount(calc.MonthlyTotal, calc.Currency),
	})
}

type courseView struct {
	model.Course
	DisplayPrice      string `json:"displayPrice"`
	DisplayHourlyRate string `json:"displayHourlyRate"`
}

// ListCourses returns active courses with prices shown in the visitor's
// currency.
func (h *PricingController) ListCourses(c *fiber.Ctx) error {
	courses, err := h.courses.ListActive(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}

	sel := h.selection(c)
	out := make([]courseView, 0, len(courses))
	for _, course := range courses {
		view := courseView{Course: course}
		if course.Currency == currency.BaseCurrency {
			view.DisplayPrice = sel.FormatPrice(course.Price, currency.FormatOptions{})
			view.DisplayHourlyRate = sel.FormatPrice(course.HourlyRate, currency.FormatOptions{NoDiscount: true})
		} else {
			view.DisplayPrice = sel.FormatAmount(course.Price, course.Currency)
			view.DisplayHourlyRate = sel.FormatAmount(course.HourlyRate, course.Currency)
		}
		out = append(out, view)
	}

	return c.JSON(fiber.Map{
		"currency": sel.Selected,
		"courses":  out,
	})
}
