package controller

import (
	"context"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"livementor_backend/internal/middleware"
	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/logger"
	"livementor_backend/pkg/utils/jwt"
)

type StudentStore interface {
	Get(ctx context.Context, id uint) (*model.Student, error)
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
	Create(ctx context.Context, student *model.Student) error
}

type WelcomeMailer interface {
	SendWelcomeEmail(ctx context.Context, to, name string) error
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

const minPasswordLength = 8

type AuthController struct {
	students StudentStore
	tokens   *jwt.Manager
	mailer   WelcomeMailer
	log      *zap.Logger
}

func NewAuthController(students StudentStore, tokens *jwt.Manager, mailer WelcomeMailer, log *zap.Logger) *AuthController {
	return &AuthController{students: students, tokens: tokens, mailer: mailer, log: logger.OrNop(log)}
}

func (in *RegisterInput) validate() error {
	v := &apperror.ValidationError{}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		v.Add("email", "is not a valid email address")
	}
	if len(in.Password) < minPasswordLength {
		v.Add("password", "must be at least 8 characters")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		v.Add("firstName", "is required")
	}
	return v.OrNil()
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := input.validate(); err != nil {
		return respondError(c, a.log, err)
	}

	ctx := c.UserContext()
	if _, err := a.students.GetByEmail(ctx, input.Email); err == nil {
		return badRequest(c, "Email already exists")
	} else if !apperror.IsNotFound(err) {
		return respondError(c, a.log, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not hash password",
		})
	}

	student := &model.Student{
		Email:       input.Email,
		Password:    string(hashedPassword),
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		PhoneNumber: input.PhoneNumber,
	}
	if err := a.students.Create(ctx, student); err != nil {
		return respondError(c, a.log, err)
	}

	token, err := a.tokens.GenerateToken(student.ID, student.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	if a.mailer != nil {
		if err := a.mailer.SendWelcomeEmail(ctx, student.Email, student.GetFullName()); err != nil {
			a.log.Warn("welcome email failed", zap.Uint("student", student.ID), zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"token":   token,
		"user":    student.GetPublicProfile(),
	})
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "Invalid input")
	}

	student, err := a.students.GetByEmail(c.UserContext(), strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(student.Password), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := a.tokens.GenerateToken(student.ID, student.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  student.GetPublicProfile(),
	})
}

// GetMe returns the authenticated student's profile.
func (a *AuthController) GetMe(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	student, err := a.students.Get(c.UserContext(), claims.StudentID)
	if err != nil {
		return respondError(c, a.log, err)
	}

	return c.JSON(fiber.Map{
		"user": student.GetPublicProfile(),
	})
}
