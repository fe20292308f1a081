package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/getsentry/sentry-go"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/a2n2k3p4/payments-relay/ledger"
	"github.com/a2n2k3p4/payments-relay/models"
)

// TopicIntentSucceeded carries a payment intent id (string) once the provider
// reports the intent succeeded.
const TopicIntentSucceeded = "payment_intent:succeeded"

const defaultBatchSize = 100

type IntentRetriever interface {
	Retrieve(ctx context.Context, id string) (*models.RetrieveIntentResponse, error)
}

type CreditLedger interface {
	AddCredits(ctx context.Context, req models.AddCreditsRequest) (*models.AddCreditsResponse, error)
}

type Summary struct {
	Processed int
	Resolved  int
	Rejected  int
	Retrying  int
	Failed    int
}

// Reconciler re-applies credits for payments the ledger missed. Passes are
// serialized so a scheduled pass and an event never credit the same row twice.
type Reconciler struct {
	store       *Store
	intents     IntentRetriever
	ledger      CreditLedger
	log         logrus.FieldLogger
	maxAttempts int
	batchSize   int
	now         func() time.Time

	mu sync.Mutex
}

func NewReconciler(store *Store, intents IntentRetriever, ledger CreditLedger, log logrus.FieldLogger, maxAttempts int) *Reconciler {
	return &Reconciler{
		store:       store,
		intents:     intents,
		ledger:      ledger,
		log:         log,
		maxAttempts: maxAttempts,
		batchSize:   defaultBatchSize,
		now:         time.Now,
	}
}

// RunOnce processes one batch of pending discrepancies.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum Summary
	pending, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return sum, fmt.Errorf("load pending discrepancies: %w", err)
	}

	for i := range pending {
		status, err := r.process(ctx, &pending[i])
		if err != nil {
			return sum, err
		}
		sum.add(status)
	}

	if sum.Processed > 0 {
		r.log.WithFields(logrus.Fields{
			"processed": sum.Processed,
			"resolved":  sum.Resolved,
			"rejected":  sum.Rejected,
			"retrying":  sum.Retrying,
			"failed":    sum.Failed,
		}).Info("reconciliation pass finished")
	}
	return sum, nil
}

// ResolveIntent processes the discrepancy for one intent, if there is a pending one.
func (r *Reconciler) ResolveIntent(ctx context.Context, intentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.store.ByIntent(ctx, intentID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if d.Status != models.DiscrepancyPending {
		return d.Status, nil
	}
	return r.process(ctx, d)
}

func (r *Reconciler) process(ctx context.Context, d *models.LedgerDiscrepancy) (string, error) {
	l := r.log.WithFields(logrus.Fields{
		"reference": d.Reference,
		"intent":    d.PaymentIntentID,
		"user_id":   d.UserID,
	})

	pi, err := r.intents.Retrieve(ctx, d.PaymentIntentID)
	if err != nil {
		return r.retry(ctx, l, d, fmt.Sprintf("retrieve intent: %v", err))
	}
	if reason := mismatch(d, pi); reason != "" {
		if err := r.store.MarkRejected(ctx, d.ID, reason); err != nil {
			return "", err
		}
		l.Warn("discrepancy rejected: " + reason)
		return models.DiscrepancyRejected, nil
	}

	resp, err := r.ledger.AddCredits(ctx, models.AddCreditsRequest{
		UserID:  d.UserID,
		Amount:  d.Amount,
		Address: map[string]any(d.Address),
	})
	if ledger.Applied(resp) {
		if err := r.store.MarkResolved(ctx, d.ID, r.now()); err != nil {
			return "", err
		}
		l.Info("discrepancy resolved")
		return models.DiscrepancyResolved, nil
	}

	reason := "ledger did not confirm the credit"
	switch {
	case err != nil:
		reason = err.Error()
	case resp != nil:
		reason = fmt.Sprintf("ledger replied %q", resp.Message)
	}
	return r.retry(ctx, l, d, reason)
}

// mismatch reports why the provider's intent does not back the reported
// credit, or "" when it does. The provider is authoritative for the amount
// and, when the intent carries one, for the user.
func mismatch(d *models.LedgerDiscrepancy, pi *models.RetrieveIntentResponse) string {
	if pi.Status != models.IntentStatusSucceeded {
		return fmt.Sprintf("payment intent status is %s", pi.Status)
	}
	if pi.Amount != d.Amount {
		return fmt.Sprintf("reported amount %d does not match payment intent amount %d", d.Amount, pi.Amount)
	}
	if uid, ok := pi.Metadata[models.MetaUserID]; ok && uid != d.UserID {
		return fmt.Sprintf("reported user %s does not match payment intent user %s", d.UserID, uid)
	}
	return ""
}

func (r *Reconciler) retry(ctx context.Context, l logrus.FieldLogger, d *models.LedgerDiscrepancy, reason string) (string, error) {
	status, err := r.store.RecordAttempt(ctx, d, reason, r.maxAttempts)
	if err != nil {
		return "", err
	}

	l = l.WithField("attempts", d.Attempts+1)
	if status == models.DiscrepancyFailed {
		l.Error("discrepancy failed permanently: " + reason)
		reportFailed(d, reason)
	} else {
		l.Warn("discrepancy retry failed: " + reason)
	}
	return status, nil
}

func reportFailed(d *models.LedgerDiscrepancy, reason string) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("payment_intent", d.PaymentIntentID)
		scope.SetTag("reference", d.Reference)
		scope.SetExtra("user_id", d.UserID)
		scope.SetExtra("amount", d.Amount)
		hub.CaptureMessage("ledger credit could not be reconciled: " + reason)
	})
}

func (s *Summary) add(status string) {
	s.Processed++
	switch status {
	case models.DiscrepancyResolved:
		s.Resolved++
	case models.DiscrepancyRejected:
		s.Rejected++
	case models.DiscrepancyFailed:
		s.Failed++
	default:
		s.Retrying++
	}
}

// Subscribe resolves discrepancies as soon as the provider reports the intent
// succeeded, instead of waiting for the next scheduled pass.
func (r *Reconciler) Subscribe(bus EventBus.Bus) error {
	return bus.SubscribeAsync(TopicIntentSucceeded, func(intentID string) {
		if _, err := r.ResolveIntent(context.Background(), intentID); err != nil {
			r.log.WithError(err).WithField("intent", intentID).Error("event reconciliation failed")
		}
	}, false)
}

// Schedule runs RunOnce every interval. The caller stops the returned scheduler.
func (r *Reconciler) Schedule(interval time.Duration) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(interval).Do(func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.log.WithError(err).Error("scheduled reconciliation failed")
		}
	})
	if err != nil {
		return nil, err
	}

	s.StartAsync()
	return s, nil
}
