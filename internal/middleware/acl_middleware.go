package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
)

// SubscriptionLookup resolves the subscription a route parameter refers to.
type SubscriptionLookup func(ctx context.Context, id string) (*model.CourseSubscription, error)

// CheckSubscriptionOwnership lets the request through only when the
// subscription named by :id belongs to the authenticated student.
func CheckSubscriptionOwnership(lookup SubscriptionLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		sub, err := lookup(c.UserContext(), c.Params("id"))
		if apperror.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Subscription not found",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not load subscription",
			})
		}

		if sub.StudentID != claims.StudentID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to access this subscription",
			})
		}

		return c.Next()
	}
}
