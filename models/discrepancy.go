package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Discrepancy statuses.
const (
	DiscrepancyPending  = "pending"
	DiscrepancyResolved = "resolved"
	DiscrepancyRejected = "rejected" // provider says the intent never succeeded
	DiscrepancyFailed   = "failed"   // retries exhausted, needs a human
)

// LedgerDiscrepancy records a payment that succeeded at the provider while the
// credits ledger did not confirm the credit.
type LedgerDiscrepancy struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	DeletedAt       gorm.DeletedAt    `gorm:"index" json:"-"`
	Reference       string            `gorm:"uniqueIndex;size:36" json:"reference"`
	PaymentIntentID string            `gorm:"uniqueIndex" json:"payment_intent_id"`
	UserID          string            `gorm:"index" json:"user_id"`
	Amount          int64             `json:"amount"`
	Address         datatypes.JSONMap `gorm:"type:jsonb" json:"address,omitempty"`
	LedgerMessage   string            `json:"ledger_message"`
	Status          string            `gorm:"index" json:"status"`
	Attempts        int               `json:"attempts"`
	LastError       *string           `json:"last_error,omitempty"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
}

// ReportDiscrepancyRequest is sent by the payment form when the ledger did not
// confirm a credit for a succeeded payment.
type ReportDiscrepancyRequest struct {
	PaymentIntentID string         `json:"payment_intent_id" validate:"required"`
	UserID          string         `json:"user_id" validate:"required"`
	Amount          int64          `json:"amount" validate:"gt=0"`
	Address         map[string]any `json:"address,omitempty"`
	LedgerMessage   string         `json:"ledger_message"`
}

type ReportDiscrepancyResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}
