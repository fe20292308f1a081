package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/a2n2k3p4/payments-relay/ledger"
	"github.com/a2n2k3p4/payments-relay/models"
)

const (
	MessageSucceeded    = "Payment succeeded! Credits have been added to your account."
	MessageLedgerFailed = "Payment succeeded, but updating your credits failed. Please contact support."
	MessageUnexpected   = "An unexpected error occurred."
	MessageProcessing   = "Your payment is processing."
)

var ErrSubmitInFlight = errors.New("submit already in flight")

type OutcomeKind string

const (
	OutcomeNone               OutcomeKind = ""
	OutcomeFailed             OutcomeKind = "failed"
	OutcomeRedirect           OutcomeKind = "redirect"
	OutcomePending            OutcomeKind = "pending"
	OutcomeSucceeded          OutcomeKind = "succeeded"
	OutcomeLedgerInconsistent OutcomeKind = "ledger_inconsistent"
)

// Outcome is what the form shows after a submit.
type Outcome struct {
	Kind        OutcomeKind
	Message     string
	IntentID    string
	RedirectURL string
	// Reference identifies the reported discrepancy, if any.
	Reference string
}

// Elements holds the mounted payment element state.
type Elements struct {
	ClientSecret  string
	PaymentMethod string
}

func (e *Elements) ready() bool {
	return e != nil && e.ClientSecret != "" && e.PaymentMethod != ""
}

type CreditLedger interface {
	AddCredits(ctx context.Context, req models.AddCreditsRequest) (*models.AddCreditsResponse, error)
}

type DiscrepancyReporter interface {
	ReportDiscrepancy(ctx context.Context, req models.ReportDiscrepancyRequest) (*models.ReportDiscrepancyResponse, error)
}

type FormConfig struct {
	Confirmer Confirmer
	Ledger    CreditLedger
	// Reporter is optional; without it inconsistencies are only logged.
	Reporter  DiscrepancyReporter
	UserID string
	// Amount is the intent amount in the smallest currency unit. A reported
	// discrepancy is only credited when it matches the provider's amount.
	Amount    int64
	ReturnURL string
	Log       logrus.FieldLogger
}

// Form is one checkout session. At most one Submit runs at a time.
type Form struct {
	cfg  FormConfig
	busy atomic.Bool

	mu       sync.Mutex
	elements *Elements
}

func NewForm(cfg FormConfig) *Form {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Form{cfg: cfg}
}

// Mount binds the payment element. Submit is a no-op until it is called.
// Remounting during a submit takes effect on the next one.
func (f *Form) Mount(el *Elements) {
	var snapshot *Elements
	if el != nil {
		cp := *el
		snapshot = &cp
	}
	f.mu.Lock()
	f.elements = snapshot
	f.mu.Unlock()
}

func (f *Form) mounted() *Elements {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements
}

// Disabled reports whether the submit control is disabled.
func (f *Form) Disabled() bool {
	return f.busy.Load()
}

func (f *Form) Submit(ctx context.Context, address models.BillingAddress) (Outcome, error) {
	el := f.mounted()
	if f.cfg.Confirmer == nil || !el.ready() {
		return Outcome{}, nil
	}
	if !f.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrSubmitInFlight
	}
	defer f.busy.Store(false)

	pi, err := f.cfg.Confirmer.ConfirmPayment(ctx, ConfirmParams{
		ClientSecret:  el.ClientSecret,
		PaymentMethod: el.PaymentMethod,
		ReturnURL:     f.cfg.ReturnURL,
	})
	if err != nil {
		var ce *ConfirmError
		if errors.As(err, &ce) {
			return Outcome{Kind: OutcomeFailed, Message: ce.Message}, nil
		}
		f.cfg.Log.WithError(err).Error("checkout: confirm payment failed")
		return Outcome{Kind: OutcomeFailed, Message: MessageUnexpected}, err
	}

	switch {
	case pi.RedirectURL != "":
		return Outcome{Kind: OutcomeRedirect, IntentID: pi.ID, RedirectURL: pi.RedirectURL}, nil
	case pi.Status != models.IntentStatusSucceeded:
		return Outcome{Kind: OutcomePending, IntentID: pi.ID, Message: MessageProcessing}, nil
	}

	return f.applyCredits(ctx, pi.ID, address), nil
}

func (f *Form) applyCredits(ctx context.Context, intentID string, address models.BillingAddress) Outcome {
	l := f.cfg.Log.WithFields(logrus.Fields{"intent": intentID, "user": f.cfg.UserID})

	resp, err := f.cfg.Ledger.AddCredits(ctx, models.AddCreditsRequest{
		UserID:  f.cfg.UserID,
		Amount:  f.cfg.Amount,
		Address: address,
	})
	if err == nil && ledger.Applied(resp) {
		return Outcome{Kind: OutcomeSucceeded, IntentID: intentID, Message: MessageSucceeded}
	}

	ledgerMessage := ""
	if resp != nil {
		ledgerMessage = resp.Message
	}
	if err != nil && ledgerMessage == "" {
		ledgerMessage = err.Error()
	}
	l.Warnf("checkout: payment succeeded but ledger replied %q", ledgerMessage)

	out := Outcome{Kind: OutcomeLedgerInconsistent, IntentID: intentID, Message: MessageLedgerFailed}
	if f.cfg.Reporter == nil {
		return out
	}

	rep, err := f.cfg.Reporter.ReportDiscrepancy(ctx, models.ReportDiscrepancyRequest{
		PaymentIntentID: intentID,
		UserID:          f.cfg.UserID,
		Amount:          f.cfg.Amount,
		Address:         address.AsMap(),
		LedgerMessage:   ledgerMessage,
	})
	if err != nil {
		l.WithError(err).Error("checkout: report discrepancy failed")
		return out
	}
	out.Reference = rep.Reference
	out.Message += " Reference: " + rep.Reference
	return out
}
