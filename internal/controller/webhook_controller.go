package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"livementor_backend/pkg/logger"
	"livementor_backend/pkg/metrics"
	"livementor_backend/pkg/payment"
)

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.Event, error)
}

type SubscriptionEventHandler interface {
	ApplyWebhookEvent(ctx context.Context, ev *payment.Event) error
}

type CheckoutEventHandler interface {
	ConfirmFromEvent(ctx context.Context, ev *payment.Event) error
}

type WebhookController struct {
	parser        WebhookParser
	subscriptions SubscriptionEventHandler
	enrollments   CheckoutEventHandler
	metrics       *metrics.Collector
	log           *zap.Logger
}

func NewWebhookController(parser WebhookParser, subs SubscriptionEventHandler, enrollments CheckoutEventHandler, m *metrics.Collector, log *zap.Logger) *WebhookController {
	return &WebhookController{
		parser:        parser,
		subscriptions: subs,
		enrollments:   enrollments,
		metrics:       m,
		log:           logger.OrNop(log),
	}
}

// HandleStripeWebhook verifies the Stripe-Signature header and routes the
// event. Handler failures return 500 so Stripe retries the delivery.
func (h *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	ev, err := h.parser.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.metrics.WebhookEvent("unknown", "invalid_signature")
		h.log.Warn("webhook rejected", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	h.log.Info("processing webhook event", zap.String("event", ev.ID), zap.String("type", ev.Type))

	switch ev.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncSucceeded:
		err = h.enrollments.ConfirmFromEvent(c.UserContext(), ev)
	case payment.EventSubscriptionCreated, payment.EventSubscriptionUpdated,
		payment.EventSubscriptionDeleted, payment.EventSubscriptionPaused,
		payment.EventSubscriptionResumed, payment.EventInvoicePaid,
		payment.EventInvoiceFailed:
		err = h.subscriptions.ApplyWebhookEvent(c.UserContext(), ev)
	default:
		h.metrics.WebhookEvent(ev.Type, "ignored")
		return c.SendStatus(fiber.StatusOK)
	}

	if err != nil {
		h.metrics.WebhookEvent(ev.Type, "error")
		h.log.Error("webhook handling failed",
			zap.String("event", ev.ID),
			zap.String("type", ev.Type),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not process event",
		})
	}

	h.metrics.WebhookEvent(ev.Type, "ok")
	return c.SendStatus(fiber.StatusOK)
}
