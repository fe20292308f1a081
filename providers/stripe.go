package providers

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/a2n2k3p4/payments-relay/models"
)

var ErrMissingSecretKey = errors.New("stripe secret key is required")

// Stripe implements intents.Provider on top of the stripe-go API client.
type Stripe struct {
	api            *client.API
	webhookSignKey string
}

// NewStripe builds a client for one account. backends may be nil to use the
// public Stripe API with DefaultBackends.
func NewStripe(secretKey, webhookSignKey string, backends *stripe.Backends) (*Stripe, error) {
	if secretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if backends == nil {
		backends = DefaultBackends()
	}

	var api client.API
	api.Init(secretKey, backends)

	return &Stripe{api: &api, webhookSignKey: webhookSignKey}, nil
}

// DefaultBackends talks to the public Stripe API without network retries.
func DefaultBackends() *stripe.Backends {
	return NewBackends(stripe.BackendConfig{})
}

// NewBackends builds the API, Connect and Uploads backends from one config.
// MaxNetworkRetries is forced to zero unless set: a failed provider call is
// surfaced to the caller, not retried behind its back.
func NewBackends(cfg stripe.BackendConfig) *stripe.Backends {
	if cfg.MaxNetworkRetries == nil {
		cfg.MaxNetworkRetries = stripe.Int64(0)
	}
	// GetBackendWithConfig fills defaults into the config it is given.
	apiCfg, uploadsCfg := cfg, cfg
	api := stripe.GetBackendWithConfig(stripe.APIBackend, &apiCfg)
	return &stripe.Backends{
		API:     api,
		Connect: api,
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &uploadsCfg),
	}
}

func (s *Stripe) CreateIntent(ctx context.Context, p *models.IntentParams) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(p.Amount),
		Currency:           stripe.String(p.Currency),
		Customer:           stripe.String(p.Customer),
		Description:        stripe.String(p.Description),
		PaymentMethodTypes: stripe.StringSlice(p.PaymentMethodTypes),
	}
	params.Context = ctx

	for k, v := range p.Metadata.Map() {
		params.AddMetadata(k, v)
	}

	if p.Shipping != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name: stripe.String(p.Shipping.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(p.Shipping.Address.Line1),
				Line2:      p.Shipping.Address.Line2,
				City:       stripe.String(p.Shipping.Address.City),
				State:      stripe.String(p.Shipping.Address.State),
				PostalCode: stripe.String(p.Shipping.Address.PostalCode),
				Country:    stripe.String(p.Shipping.Address.Country),
			},
		}
	}

	if p.PaymentMethodOptions != nil && p.PaymentMethodOptions.Card != nil {
		params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
			Card: &stripe.PaymentIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String(p.PaymentMethodOptions.Card.RequestThreeDSecure),
			},
		}
	}

	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (s *Stripe) ConfirmIntent(ctx context.Context, req models.ConfirmIntentRequest) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
	}

	pi, err := s.api.PaymentIntents.Confirm(req.ID, params)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (s *Stripe) RetrieveIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// Events from endpoints pinned to another API version are accepted.
func (s *Stripe) ConstructEvent(body []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(body, signature, s.webhookSignKey, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func toIntent(pi *stripe.PaymentIntent) *models.PaymentIntent {
	out := &models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Description:  pi.Description,
		Metadata:     pi.Metadata,
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethod = pi.PaymentMethod.ID
	}
	if pi.Shipping != nil {
		out.Shipping = &models.Shipping{Name: pi.Shipping.Name}
		if a := pi.Shipping.Address; a != nil {
			out.Shipping.Address = models.Address{
				Line1:      a.Line1,
				City:       a.City,
				State:      a.State,
				PostalCode: a.PostalCode,
				Country:    a.Country,
			}
			if a.Line2 != "" {
				line2 := a.Line2
				out.Shipping.Address.Line2 = &line2
			}
		}
	}
	return out
}
