package intents

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/a2n2k3p4/payments-relay/models"
)

// Provider is the external payments provider. It owns intent state.
type Provider interface {
	CreateIntent(ctx context.Context, params *models.IntentParams) (*models.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, req models.ConfirmIntentRequest) (*models.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
}

// Service translates between this API's request shapes and the provider's.
// It keeps no state between calls.
type Service struct {
	provider Provider
	log      logrus.FieldLogger
}

func NewService(provider Provider, log logrus.FieldLogger) *Service {
	return &Service{provider: provider, log: log}
}

func (s *Service) Create(ctx context.Context, req *models.CreateIntentRequest) (*models.CreateIntentResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	params := BuildParams(req)
	l := s.log.WithFields(logrus.Fields{
		"customer":         params.Customer,
		"currency":         params.Currency,
		"amount":           params.Amount,
		"transaction_type": params.Metadata.TransactionType,
	})

	pi, err := s.provider.CreateIntent(ctx, params)
	if err != nil {
		perr := &ProviderError{Op: "create", Err: err}
		l.WithError(err).Error("create payment intent failed")
		return nil, perr
	}

	l.WithField("intent", pi.ID).Infof("payment intent created status=%s", pi.Status)
	return &models.CreateIntentResponse{
		ClientSecret: pi.ClientSecret,
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     pi.Currency,
		Status:       pi.Status,
		Metadata:     pi.Metadata,
	}, nil
}

func (s *Service) Confirm(ctx context.Context, req models.ConfirmIntentRequest) (*models.ConfirmIntentResponse, error) {
	pi, err := s.provider.ConfirmIntent(ctx, req)
	if err != nil {
		s.log.WithError(err).WithField("intent", req.ID).Error("confirm payment intent failed")
		return nil, &ProviderError{Op: "confirm", Err: err}
	}

	return &models.ConfirmIntentResponse{
		ID:            pi.ID,
		Status:        pi.Status,
		PaymentMethod: pi.PaymentMethod,
	}, nil
}

func (s *Service) Retrieve(ctx context.Context, id string) (*models.RetrieveIntentResponse, error) {
	pi, err := s.provider.RetrieveIntent(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("intent", id).Error("retrieve payment intent failed")
		return nil, &ProviderError{Op: "retrieve", Err: err}
	}

	return &models.RetrieveIntentResponse{
		ID:          pi.ID,
		Amount:      pi.Amount,
		Currency:    pi.Currency,
		Status:      pi.Status,
		Description: pi.Description,
		Shipping:    pi.Shipping,
		Metadata:    pi.Metadata,
	}, nil
}
