package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/a2n2k3p4/payments-relay/intents"
	"github.com/a2n2k3p4/payments-relay/models"
)

// IntentService is implemented by *intents.Service.
type IntentService interface {
	Create(ctx context.Context, req *models.CreateIntentRequest) (*models.CreateIntentResponse, error)
	Confirm(ctx context.Context, req models.ConfirmIntentRequest) (*models.ConfirmIntentResponse, error)
	Retrieve(ctx context.Context, id string) (*models.RetrieveIntentResponse, error)
}

type PaymentHandler struct {
	Intents IntentService
	Log     logrus.FieldLogger
}

func NewPaymentHandler(svc IntentService, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{Intents: svc, Log: log}
}

func (h *PaymentHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *PaymentHandler) CreatePaymentIntent(c *fiber.Ctx) error {
	var req models.CreateIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request: " + err.Error()})
	}
	req.IdempotencyKey = c.Get("Idempotency-Key")

	resp, err := h.Intents.Create(c.UserContext(), &req)
	if err != nil {
		return intentError(c, err, "Failed to create payment intent")
	}
	return c.JSON(resp)
}

func (h *PaymentHandler) ConfirmPaymentIntent(c *fiber.Ctx) error {
	req := models.ConfirmIntentRequest{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request: " + err.Error()})
		}
	}
	req.ID = c.Params("id")

	resp, err := h.Intents.Confirm(c.UserContext(), req)
	if err != nil {
		return intentError(c, err, "Failed to confirm payment intent")
	}
	return c.JSON(resp)
}

func (h *PaymentHandler) GetPaymentIntent(c *fiber.Ctx) error {
	resp, err := h.Intents.Retrieve(c.UserContext(), c.Params("id"))
	if err != nil {
		return intentError(c, err, "Failed to retrieve payment intent")
	}
	return c.JSON(resp)
}

// intentError maps ValidationError to 400 and everything else to 500 with the
// provider's message in details.
func intentError(c *fiber.Ctx, err error, message string) error {
	var verr *intents.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Message})
	}

	details := err.Error()
	var perr *intents.ProviderError
	if errors.As(err, &perr) {
		details = perr.Message()
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   message,
		"details": details,
	})
}
