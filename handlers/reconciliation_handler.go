// reconciliation_handler.go contains the GET and POST handlers for /reconciliations
package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/a2n2k3p4/payments-relay/models"
	"github.com/a2n2k3p4/payments-relay/reconcile"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// DiscrepancyStore is implemented by *reconcile.Store.
type DiscrepancyStore interface {
	Record(ctx context.Context, req models.ReportDiscrepancyRequest) (*models.LedgerDiscrepancy, bool, error)
	Get(ctx context.Context, id string) (*models.LedgerDiscrepancy, error)
	List(ctx context.Context, f reconcile.Filters, limit, offset int) ([]models.LedgerDiscrepancy, int64, error)
}

type ReconciliationHandler struct {
	Store    DiscrepancyStore
	Log      logrus.FieldLogger
	validate *validator.Validate
}

func NewReconciliationHandler(store DiscrepancyStore, log logrus.FieldLogger) *ReconciliationHandler {
	return &ReconciliationHandler{Store: store, Log: log, validate: validator.New()}
}

// ReportDiscrepancy records a payment the ledger did not credit. Reporting the
// same intent twice returns the original reference.
func (h *ReconciliationHandler) ReportDiscrepancy(c *fiber.Ctx) error {
	var req models.ReportDiscrepancyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request: " + err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_intent_id, user_id and a positive amount are required"})
	}

	d, created, err := h.Store.Record(c.UserContext(), req)
	if errors.Is(err, reconcile.ErrConflict) {
		h.Log.WithFields(logrus.Fields{
			"intent":  req.PaymentIntentID,
			"user_id": req.UserID,
		}).Warn("conflicting discrepancy report refused")
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		h.Log.WithError(err).WithField("intent", req.PaymentIntentID).Error("record discrepancy failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record discrepancy: " + err.Error()})
	}

	l := h.Log.WithFields(logrus.Fields{
		"reference":      d.Reference,
		"intent":         d.PaymentIntentID,
		"user_id":        d.UserID,
		"ledger_message": req.LedgerMessage,
	})
	if !created {
		l.Info("ledger discrepancy reported again")
		return c.JSON(models.ReportDiscrepancyResponse{Reference: d.Reference, Status: d.Status})
	}

	l.Warn("ledger discrepancy reported")
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("payment_intent", d.PaymentIntentID)
		scope.SetTag("reference", d.Reference)
		sentry.CaptureMessage("payment succeeded but ledger credit failed")
	})

	return c.JSON(models.ReportDiscrepancyResponse{Reference: d.Reference, Status: d.Status})
}

func (h *ReconciliationHandler) ListDiscrepancies(c *fiber.Ctx) error {
	f := reconcile.Filters{
		Status: c.Query("status"),
		UserID: c.Query("user_id"),
	}
	limit, offset := helpersParseLimitOffset(c.Query("limit"), c.Query("offset"))

	items, total, err := h.Store.List(c.UserContext(), f, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve discrepancies: " + err.Error()})
	}

	return c.JSON(fiber.Map{
		"discrepancies": items,
		"pagination": fiber.Map{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// GetDiscrepancy accepts either the numeric id or the reference.
func (h *ReconciliationHandler) GetDiscrepancy(c *fiber.Ctx) error {
	d, err := h.Store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Discrepancy not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve discrepancy: " + err.Error()})
	}
	return c.JSON(d)
}

func helpersParseLimitOffset(limitStr, offsetStr string) (int, int) {
	limit, offset := defaultPageLimit, 0
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
		limit = l
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}
