package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const stripeAPIURL = "https://api.stripe.com"

var ErrInvalidClientSecret = errors.New("invalid client secret")

// ConfirmError is an error the provider reported for the confirmation itself,
// such as a declined card. Message is safe to show to the payer.
type ConfirmError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ConfirmError) Error() string {
	return e.Message
}

type ConfirmParams struct {
	ClientSecret  string
	PaymentMethod string
	ReturnURL     string
}

// ConfirmedIntent is the provider's answer to a client-side confirmation.
// RedirectURL is set only when the provider requires a redirect to finish.
type ConfirmedIntent struct {
	ID          string
	Status      string
	Amount      int64
	Currency    string
	RedirectURL string
}

// Confirmer confirms an intent from the payer's side using only its client secret.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, params ConfirmParams) (*ConfirmedIntent, error)
}

// StripeConfirmer confirms with a publishable key, the same call Stripe.js makes.
type StripeConfirmer struct {
	rest *resty.Client
}

// NewStripeConfirmer uses the public Stripe API when baseURL is empty.
func NewStripeConfirmer(publishableKey, baseURL string, timeout time.Duration) *StripeConfirmer {
	if baseURL == "" {
		baseURL = stripeAPIURL
	}
	return &StripeConfirmer{
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetAuthToken(publishableKey),
	}
}

type intentPayload struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	NextAction *struct {
		Type          string `json:"type"`
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

type errorPayload struct {
	Error *ConfirmError `json:"error"`
}

func (s *StripeConfirmer) ConfirmPayment(ctx context.Context, params ConfirmParams) (*ConfirmedIntent, error) {
	id, err := IntentIDFromSecret(params.ClientSecret)
	if err != nil {
		return nil, err
	}

	form := map[string]string{"client_secret": params.ClientSecret}
	if params.PaymentMethod != "" {
		form["payment_method"] = params.PaymentMethod
	}
	if params.ReturnURL != "" {
		form["return_url"] = params.ReturnURL
	}

	var (
		out  intentPayload
		fail errorPayload
	)
	resp, err := s.rest.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&fail).
		Post("/v1/payment_intents/" + id + "/confirm")
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	if resp.IsError() {
		if fail.Error != nil && fail.Error.Message != "" {
			return nil, fail.Error
		}
		return nil, fmt.Errorf("confirm payment: provider returned status %d", resp.StatusCode())
	}

	ci := &ConfirmedIntent{
		ID:       out.ID,
		Status:   out.Status,
		Amount:   out.Amount,
		Currency: out.Currency,
	}
	if na := out.NextAction; na != nil && na.Type == "redirect_to_url" && na.RedirectToURL != nil {
		ci.RedirectURL = na.RedirectToURL.URL
	}
	return ci, nil
}

// IntentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromSecret(secret string) (string, error) {
	i := strings.Index(secret, "_secret_")
	if i <= 0 || !strings.HasPrefix(secret, "pi_") {
		return "", ErrInvalidClientSecret
	}
	return secret[:i], nil
}
