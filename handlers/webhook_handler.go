package handlers

import (
	"encoding/json"

	"github.com/asaskevich/EventBus"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"

	"github.com/a2n2k3p4/payments-relay/models"
	"github.com/a2n2k3p4/payments-relay/reconcile"
)

// EventVerifier checks the provider's webhook signature.
type EventVerifier interface {
	ConstructEvent(body []byte, signature string) (stripe.Event, error)
}

type WebhookHandler struct {
	Verifier EventVerifier
	Intents  IntentService
	Bus      EventBus.Bus
	Log      logrus.FieldLogger
}

func NewWebhookHandler(verifier EventVerifier, svc IntentService, bus EventBus.Bus, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{Verifier: verifier, Intents: svc, Bus: bus, Log: log}
}

// HandleStripeWebhook verifies the signature, then re-retrieves succeeded
// intents from the provider before announcing them.
// Returns 5xx on transient failure so Stripe retries; 200 when processed or ignored.
func (h *WebhookHandler) HandleStripeWebhook(c *fiber.Ctx) error {
	ev, err := h.Verifier.ConstructEvent(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.Log.WithError(err).Warn("webhook: signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event verification failed"})
	}

	l := h.Log.WithFields(logrus.Fields{"event": ev.ID, "type": string(ev.Type)})
	if ev.Data == nil {
		l.Warn("webhook: event without data")
		return c.SendStatus(fiber.StatusOK)
	}

	switch ev.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil || pi.ID == "" {
			l.Warn("webhook: unexpected event data")
			return c.SendStatus(fiber.StatusOK)
		}

		verified, err := h.Intents.Retrieve(c.UserContext(), pi.ID)
		if err != nil {
			l.WithError(err).Error("webhook: retrieve payment intent failed")
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		if verified.Status != models.IntentStatusSucceeded {
			l.Warnf("webhook: intent %s reported succeeded but provider status is %s", pi.ID, verified.Status)
			return c.SendStatus(fiber.StatusOK)
		}

		h.Bus.Publish(reconcile.TopicIntentSucceeded, verified.ID)
		l.Infof("webhook: payment intent %s succeeded amount=%d currency=%s", verified.ID, verified.Amount, verified.Currency)

	case "payment_intent.payment_failed":
		var pi struct {
			ID               string `json:"id"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			l.Warn("webhook: unexpected event data")
			return c.SendStatus(fiber.StatusOK)
		}
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Message
		}
		l.Warnf("webhook: payment intent %s failed: %s", pi.ID, reason)

	default:
		l.Debug("webhook: unhandled event type")
	}

	return c.SendStatus(fiber.StatusOK)
}
