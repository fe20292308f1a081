package handlers

import (
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type ServerConfig struct {
	AllowOrigins string
	AccessLog    bool
}

// NewApp builds the fiber app with middleware and every route registered.
// webhook and reconciliations may be nil to leave those routes out.
func NewApp(cfg ServerConfig, payments *PaymentHandler, webhook *WebhookHandler, reconciliations *ReconciliationHandler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(Sentry())
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: "GET, POST, OPTIONS",
		AllowHeaders: "Content-Type, Authorization, Idempotency-Key",
	}))

	app.Get("/health", payments.Health)
	app.Post("/payment-intents", payments.CreatePaymentIntent)
	app.Post("/payment-intents/:id/confirm", payments.ConfirmPaymentIntent)
	app.Get("/payment-intents/:id", payments.GetPaymentIntent)

	if webhook != nil {
		app.Post("/webhooks/stripe", webhook.HandleStripeWebhook)
	}
	if reconciliations != nil {
		app.Post("/reconciliations", reconciliations.ReportDiscrepancy)
		app.Get("/reconciliations", reconciliations.ListDiscrepancies)
		app.Get("/reconciliations/:id", reconciliations.GetDiscrepancy)
	}

	return app
}

// Sentry reports handler errors and 5xx responses.
func Sentry() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		if status < fiber.StatusInternalServerError {
			return err
		}

		hub := sentry.CurrentHub().Clone()
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelError)
			scope.SetTag("method", c.Method())
			scope.SetTag("route", c.Route().Path)
			if err != nil {
				hub.CaptureException(err)
				return
			}
			hub.CaptureMessage(fmt.Sprintf("%s %s returned %d", c.Method(), c.Path(), status))
		})
		return err
	}
}
