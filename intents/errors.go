package intents

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"
)

const MissingFieldsMessage = "Missing required fields: amount, currency, customer, description"

// ValidationError is returned before any provider call when the request is incomplete.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProviderError wraps any failure of the payments provider.
type ProviderError struct {
	Op  string // create, confirm, retrieve
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s payment intent: %s", e.Op, e.Message())
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Message is the provider's own human readable message when it sent one.
func (e *ProviderError) Message() string {
	var stripeErr *stripe.Error
	if errors.As(e.Err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	if e.Err == nil {
		return "unknown provider error"
	}
	return e.Err.Error()
}
