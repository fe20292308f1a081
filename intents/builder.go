package intents

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/a2n2k3p4/payments-relay/models"
)

const domesticCurrency = "inr"

var validate = validator.New()

// Classify returns the transaction type for a currency code.
func Classify(currency string) string {
	if strings.EqualFold(currency, domesticCurrency) {
		return models.TransactionTypeDomestic
	}
	return models.TransactionTypeExport
}

// RoundAmount rounds to the nearest minor unit, halves away from zero.
func RoundAmount(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// Validate rejects requests missing amount, currency, customer or description.
// A zero amount counts as missing.
func Validate(req *models.CreateIntentRequest) error {
	if req == nil || req.Amount == nil || req.Amount.IsZero() {
		return &ValidationError{Message: MissingFieldsMessage}
	}
	if err := validate.Struct(req); err != nil {
		return &ValidationError{Message: MissingFieldsMessage}
	}
	return nil
}

// BuildParams derives the provider parameters from a validated request.
func BuildParams(req *models.CreateIntentRequest) *models.IntentParams {
	txType := Classify(req.Currency)
	export := txType == models.TransactionTypeExport

	meta := models.Metadata{
		TransactionType:  txType,
		CurrencyOriginal: req.Currency,
	}
	if export {
		desc := req.Description
		meta.DescriptionExport = &desc
	}
	if req.UserID != "" {
		uid := req.UserID
		meta.UserID = &uid
	}

	methodTypes := req.PaymentMethodTypes
	if len(methodTypes) == 0 {
		methodTypes = []string{models.PaymentMethodTypeCard}
	}

	params := &models.IntentParams{
		Amount:             RoundAmount(*req.Amount),
		Currency:           strings.ToLower(req.Currency),
		Customer:           req.Customer,
		Description:        req.Description,
		PaymentMethodTypes: methodTypes,
		IdempotencyKey:     req.IdempotencyKey,
	}

	if req.Shipping != nil {
		params.Shipping = normalizeShipping(req.Shipping)
		country := req.Shipping.Address.Country
		meta.HasShipping = true
		meta.ShippingCountry = &country
	}

	if export {
		params.PaymentMethodOptions = &models.PaymentMethodOptions{
			Card: &models.CardOptions{RequestThreeDSecure: models.ThreeDSecureAutomatic},
		}
	}

	params.Metadata = meta
	return params
}

func normalizeShipping(in *models.ShippingInput) *models.Shipping {
	addr := models.Address{
		Line1:      in.Address.Line1,
		City:       in.Address.City,
		State:      in.Address.State,
		PostalCode: in.Address.PostalCode,
		Country:    in.Address.Country,
	}
	if in.Address.Line2 != "" {
		line2 := in.Address.Line2
		addr.Line2 = &line2
	}
	return &models.Shipping{Name: in.Name, Address: addr}
}
