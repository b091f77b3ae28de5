package controller

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"livementor_backend/pkg/apperror"
)

// respondError maps service errors onto status codes. Provider and internal
// details stay in the log.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var (
		validation *apperror.ValidationError
		notFound   *apperror.NotFoundError
		provider   *apperror.ProviderError
	)

	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": validation.Fields,
		})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFound.Error(),
		})
	case errors.As(err, &provider):
		log.Warn("billing provider rejected request",
			zap.String("path", c.Path()),
			zap.String("code", provider.Code),
			zap.Error(err))
		return c.Status(providerStatus(provider)).JSON(fiber.Map{
			"error": "Payment provider could not process the request, please try again",
			"code":  provider.Code,
		})
	}

	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

// providerStatus passes through 4xx statuses and reports everything else
// as a bad gateway.
func providerStatus(p *apperror.ProviderError) int {
	if p.StatusCode >= 400 && p.StatusCode < 500 {
		return p.StatusCode
	}
	return http.StatusBadGateway
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
