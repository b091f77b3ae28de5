package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livementor_backend/internal/controller"
	"livementor_backend/internal/middleware"
	"livementor_backend/internal/model"
	"livementor_backend/internal/repository"
	"livementor_backend/internal/service/catalog"
	"livementor_backend/internal/service/enrollment"
	"livementor_backend/internal/service/subscription"
	"livementor_backend/pkg/config"
	"livementor_backend/pkg/cron"
	"livementor_backend/pkg/currency"
	"livementor_backend/pkg/database"
	"livementor_backend/pkg/email"
	"livementor_backend/pkg/logger"
	"livementor_backend/pkg/metrics"
	"livementor_backend/pkg/payment"
	"livementor_backend/pkg/seed"
	"livementor_backend/pkg/storage"
	"livementor_backend/pkg/utils/jwt"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if err := database.InitDB(cfg.Database.URL, log); err != nil {
		log.Fatal("could not connect to database", zap.Error(err))
	}
	db := database.GetDB()
	if err := database.MigrateDatabase(db, log, model.All()...); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}
	if cfg.Database.Seed {
		if err := seed.SeedCourses(db, log); err != nil {
			log.Warn("course seed incomplete", zap.Error(err))
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	m := metrics.New()
	httpClient := &http.Client{Timeout: 10 * time.Second}

	rates := currency.NewRateProvider(currency.RateProviderConfig{
		URL:      cfg.Currency.RatesURL,
		CacheTTL: cfg.Currency.RatesTTL,
		Timeout:  cfg.Currency.RatesTimeout,
	}, httpClient, rdb, log, m)
	currencySvc := currency.NewService(currency.Config{
		ZeroDecimal:     cfg.Currency.ZeroDecimal,
		GeoTimeout:      cfg.Currency.GeoTimeout,
		PromoMultiplier: cfg.Currency.PromoMultiplier,
		PromoEndsAt:     cfg.Currency.PromoEndsAt,
	}, currency.NewRedisPreferenceStore(rdb), currency.DefaultGeoProviders(httpClient, currency.GeoURLs{
		IPAPI:    cfg.Currency.IPAPIURL,
		IPAPICom: cfg.Currency.IPAPIComURL,
		IPWhois:  cfg.Currency.IPWhoisURL,
	}), rates, log, m)

	provider := payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	var (
		subNotifier    subscription.Notifier
		enrollNotifier enrollment.Notifier
		welcome        controller.WelcomeMailer
	)
	mailer, err := email.NewEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, email.WithLogger(log))
	if err != nil {
		log.Warn("email disabled", zap.Error(err))
	} else {
		subNotifier, enrollNotifier, welcome = mailer, mailer, mailer
	}

	var receipts enrollment.Archive
	if cfg.StorageEnabled() {
		client, err := storage.NewR2Client(context.Background(), cfg.Storage)
		if err != nil {
			log.Warn("receipt archive disabled", zap.Error(err))
		} else {
			receipts = storage.NewReceiptArchive(client, cfg.Storage.Bucket, cfg.Storage.PublicURL)
		}
	}

	subSvc := subscription.NewService(subscription.Deps{
		Provider:         provider,
		Catalog:          catalog.NewService(provider, log, m),
		Courses:          courseRepo,
		Subscriptions:    subRepo,
		Sessions:         sessionRepo,
		Students:         studentRepo,
		Rates:            currencySvc,
		Notifier:         subNotifier,
		Log:              log,
		Metrics:          m,
		DefaultTrialDays: int64(cfg.Stripe.DefaultTrialDays),
	})
	enrollSvc := enrollment.NewService(enrollment.Deps{
		Checkout:    provider,
		Courses:     courseRepo,
		Enrollments: enrollmentRepo,
		Rates:       currencySvc,
		Notifier:    enrollNotifier,
		Receipts:    receipts,
		SuccessURL:  cfg.Checkout.SuccessURL,
		CancelURL:   cfg.Checkout.CancelURL,
		Log:         log,
		Metrics:     m,
	})

	scheduler, err := cron.Start(cron.Jobs{
		Trials:     subSvc,
		Pending:    enrollSvc,
		Rates:      currencySvc,
		Log:        log,
		PendingTTL: cfg.Checkout.PendingTTL,
	})
	if err != nil {
		log.Fatal("could not start scheduler", zap.Error(err))
	}

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowCredentials: cfg.Server.AllowOrigins != "*",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimit,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/webhook"
		},
	}))
	app.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	setupRoutes(app, handlers{
		tokens:        tokens,
		adminToken:    cfg.Server.AdminToken,
		auth:          controller.NewAuthController(studentRepo, tokens, welcome, log),
		pricing:       controller.NewPricingController(currencySvc, subSvc, courseRepo, log),
		subscriptions: controller.NewSubscriptionController(subSvc, studentRepo, log),
		enrollments:   controller.NewEnrollmentController(enrollSvc, log),
		webhooks:      controller.NewWebhookController(provider, subSvc, enrollSvc, m, log),

		ownsSubscription: subRepo.Get,
		sessionOwner:     subSvc.SubscriptionForSession,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server is running", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
