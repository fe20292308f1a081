package models

import "github.com/shopspring/decimal"

// Transaction classification attached to every intent's metadata.
const (
	TransactionTypeDomestic = "domestic"
	TransactionTypeExport   = "export"
)

// Metadata keys written on the provider's intent object.
const (
	MetaTransactionType   = "transaction_type"
	MetaCurrencyOriginal  = "currency_original"
	MetaDescriptionExport = "description_export"
	MetaHasShipping       = "has_shipping"
	MetaShippingCountry   = "shipping_country"
	MetaUserID            = "user_id"
)

const PaymentMethodTypeCard = "card"

// ThreeDSecureAutomatic asks the provider to challenge the card only when its
// risk engine or the issuer requires it.
const ThreeDSecureAutomatic = "automatic"

// CreateIntentRequest is the payload from the frontend to start a charge.
type CreateIntentRequest struct {
	Amount             *decimal.Decimal `json:"amount"` // smallest currency unit, may arrive fractional
	Currency           string           `json:"currency" validate:"required"`
	Customer           string           `json:"customer" validate:"required"`
	Description        string           `json:"description" validate:"required"`
	Shipping           *ShippingInput   `json:"shipping,omitempty"`
	PaymentMethodTypes []string         `json:"payment_method_types,omitempty"`
	// UserID, when set, is the user the credits belong to. It is written to
	// the intent metadata and checked before any reconciled credit.
	UserID string `json:"user_id,omitempty"`

	// IdempotencyKey is taken from the Idempotency-Key header, never the body.
	IdempotencyKey string `json:"-"`
}

// ShippingInput is the shipping block as the browser sends it (camelCase).
type ShippingInput struct {
	Name    string       `json:"name"`
	Address AddressInput `json:"address"`
}

type AddressInput struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ConfirmIntentRequest confirms an existing intent with a payment method reference.
type ConfirmIntentRequest struct {
	ID            string `json:"-"`
	PaymentMethod string `json:"payment_method"`
}

// IntentParams is the normalized parameter set sent to the payments provider.
type IntentParams struct {
	Amount               int64
	Currency             string
	Customer             string
	Description          string
	PaymentMethodTypes   []string
	Metadata             Metadata
	Shipping             *Shipping
	PaymentMethodOptions *PaymentMethodOptions
	IdempotencyKey       string
}

// Shipping is the provider-facing shipping block (snake_case, line2 optional).
type Shipping struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

type Address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

type PaymentMethodOptions struct {
	Card *CardOptions `json:"card,omitempty"`
}

type CardOptions struct {
	RequestThreeDSecure string `json:"request_three_d_secure"`
}

// Metadata is the classification computed once at intent creation.
// Optional keys are nil when absent and never serialized as empty strings.
type Metadata struct {
	TransactionType   string
	CurrencyOriginal  string
	DescriptionExport *string
	HasShipping       bool
	ShippingCountry   *string
	UserID            *string
}

// Map flattens the metadata into the provider's string map, leaving absent keys out.
func (m Metadata) Map() map[string]string {
	out := map[string]string{
		MetaTransactionType:  m.TransactionType,
		MetaCurrencyOriginal: m.CurrencyOriginal,
	}
	if m.DescriptionExport != nil {
		out[MetaDescriptionExport] = *m.DescriptionExport
	}
	if m.HasShipping {
		out[MetaHasShipping] = "true"
	}
	if m.ShippingCountry != nil {
		out[MetaShippingCountry] = *m.ShippingCountry
	}
	if m.UserID != nil {
		out[MetaUserID] = *m.UserID
	}
	return out
}

// PaymentIntent is the provider's view of an intent. It is relayed, never stored.
type PaymentIntent struct {
	ID            string
	ClientSecret  string
	Amount        int64
	Currency      string
	Status        string
	Description   string
	PaymentMethod string
	Shipping      *Shipping
	Metadata      map[string]string
}

// Intent statuses owned by the provider that this code branches on.
const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusRequiresAction = "requires_action"
	IntentStatusProcessing     = "processing"
)

type CreateIntentResponse struct {
	ClientSecret string            `json:"client_secret"`
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

type ConfirmIntentResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
}

type RetrieveIntentResponse struct {
	ID          string            `json:"id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Description string            `json:"description"`
	Shipping    *Shipping         `json:"shipping"`
	Metadata    map[string]string `json:"metadata"`
}
