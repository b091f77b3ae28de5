package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"livementor_backend/internal/middleware"
	"livementor_backend/internal/service/enrollment"
	"livementor_backend/pkg/logger"
)

type EnrollmentController struct {
	svc *enrollment.Service
	log *zap.Logger
}

func NewEnrollmentController(svc *enrollment.Service, log *zap.Logger) *EnrollmentController {
	return &EnrollmentController{svc: svc, log: logger.OrNop(log)}
}

type CheckoutInput struct {
	CourseID uint            `json:"courseId"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateCheckout starts a one-time purchase and returns the hosted
// checkout URL.
func (h *EnrollmentController) CreateCheckout(c *fiber.Ctx) error {
	input := new(CheckoutInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	res, err := h.svc.Initiate(c.UserContext(), input.CourseID, enrollment.Student{
		Name:  input.Name,
		Email: input.Email,
		Phone: input.Phone,
	}, input.Amount, input.Currency)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

type ConfirmInput struct {
	SessionID string `json:"sessionId"`
}

func (h *EnrollmentController) ConfirmEnrollment(c *fiber.Ctx) error {
	input := new(ConfirmInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	e, err := h.svc.Confirm(c.UserContext(), input.SessionID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"enrollmentId": e.ID,
	})
}

func (h *EnrollmentController) GetMyEnrollments(c *fiber.Ctx) error {
	list, err := h.svc.ListForStudent(c.UserContext(), middleware.Claims(c).Email)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"enrollments": list})
}

type AssignTeacherInput struct {
	Teacher string `json:"teacher"`
}

func (h *EnrollmentController) AssignTeacher(c *fiber.Ctx) error {
	input := new(AssignTeacherInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	e, err := h.svc.AssignTeacher(c.UserContext(), c.Params("id"), input.Teacher)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"enrollment": e})
}
