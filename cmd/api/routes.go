package main

import (
	"github.com/gofiber/fiber/v2"

	"livementor_backend/internal/controller"
	"livementor_backend/internal/middleware"
	"livementor_backend/pkg/utils/jwt"
)

type handlers struct {
	tokens     *jwt.Manager
	adminToken string

	auth          *controller.AuthController
	pricing       *controller.PricingController
	subscriptions *controller.SubscriptionController
	enrollments   *controller.EnrollmentController
	webhooks      *controller.WebhookController

	// ownsSubscription and sessionOwner resolve the subscription behind :id.
	ownsSubscription middleware.SubscriptionLookup
	sessionOwner     middleware.SubscriptionLookup
}

func setupRoutes(app *fiber.App, h handlers) {
	api := app.Group("/api")

	// Auth Routes
	auth := api.Group("/auth")
	auth.Post("/register", h.auth.Register)
	auth.Post("/login", h.auth.Login)

	// Public pricing routes
	api.Get("/courses", h.pricing.ListCourses)
	api.Get("/currency", h.pricing.GetCurrency)
	api.Put("/currency", h.pricing.SetCurrency)
	api.Get("/currency/convert", h.pricing.ConvertPrice)
	api.Get("/pricing/quote", h.pricing.GetQuote)

	// One-time enrollment
	enrollments := api.Group("/enrollments")
	enrollments.Post("/checkout", h.enrollments.CreateCheckout)
	enrollments.Post("/confirm", h.enrollments.ConfirmEnrollment)
	enrollments.Get("/my", middleware.AuthMiddleware(h.tokens), h.enrollments.GetMyEnrollments)
	enrollments.Patch("/:id/teacher", middleware.AdminOnly(h.adminToken), h.enrollments.AssignTeacher)

	// Stripe webhook
	api.Post("/webhook", h.webhooks.HandleStripeWebhook)

	// Protected Routes
	protected := api.Group("/", middleware.AuthMiddleware(h.tokens))
	protected.Get("/me", h.auth.GetMe)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.Post("/", h.subscriptions.CreateSubscription)
	subscriptions.Get("/", h.subscriptions.GetSubscriptions)

	owned := middleware.CheckSubscriptionOwnership(h.ownsSubscription)
	subscriptions.Post("/:id/cancel", owned, h.subscriptions.CancelSubscription)
	subscriptions.Post("/:id/pause", owned, h.subscriptions.PauseSubscription)
	subscriptions.Post("/:id/resume", owned, h.subscriptions.ResumeSubscription)
	subscriptions.Post("/:id/sessions", owned, h.subscriptions.ScheduleSession)

	protected.Patch("/sessions/:id", middleware.CheckSubscriptionOwnership(h.sessionOwner), h.subscriptions.UpdateSession)
}
