package reconcile

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/a2n2k3p4/payments-relay/models"
)

type intentsMock struct {
	mock.Mock
}

func (m *intentsMock) Retrieve(ctx context.Context, id string) (*models.RetrieveIntentResponse, error) {
	args := m.Called(ctx, id)
	pi, _ := args.Get(0).(*models.RetrieveIntentResponse)
	return pi, args.Error(1)
}

type ledgerMock struct {
	mock.Mock
}

func (m *ledgerMock) AddCredits(ctx context.Context, req models.AddCreditsRequest) (*models.AddCreditsResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.AddCreditsResponse)
	return resp, args.Error(1)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func succeeded(id string) *models.RetrieveIntentResponse {
	return &models.RetrieveIntentResponse{ID: id, Status: models.IntentStatusSucceeded, Amount: 500, Currency: "inr"}
}

func TestReconciler_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pis := &intentsMock{}
	led := &ledgerMock{}
	r := NewReconciler(store, pis, led, quietLogger(), 3)

	for _, id := range []string{"pi_ok", "pi_unpaid", "pi_ledger_down"} {
		_, _, err := store.Record(ctx, report(id, "user_1"))
		require.NoError(t, err)
	}

	pis.On("Retrieve", mock.Anything, "pi_ok").Return(succeeded("pi_ok"), nil)
	pis.On("Retrieve", mock.Anything, "pi_unpaid").Return(&models.RetrieveIntentResponse{ID: "pi_unpaid", Status: "requires_payment_method"}, nil)
	pis.On("Retrieve", mock.Anything, "pi_ledger_down").Return(succeeded("pi_ledger_down"), nil)

	led.On("AddCredits", mock.Anything, mock.MatchedBy(func(req models.AddCreditsRequest) bool {
		return req.UserID == "user_1" && req.Amount == 500
	})).Return(&models.AddCreditsResponse{Message: models.CreditsAddedMessage}, nil).Once()
	led.On("AddCredits", mock.Anything, mock.Anything).Return(&models.AddCreditsResponse{Message: "error"}, nil)

	sum, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 3, Resolved: 1, Rejected: 1, Retrying: 1}, sum)

	ok, err := store.ByIntent(ctx, "pi_ok")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyResolved, ok.Status)
	assert.NotNil(t, ok.ResolvedAt)

	unpaid, err := store.ByIntent(ctx, "pi_unpaid")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyRejected, unpaid.Status)

	down, err := store.ByIntent(ctx, "pi_ledger_down")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyPending, down.Status)
	assert.Equal(t, 1, down.Attempts)
	assert.Equal(t, `ledger replied "error"`, *down.LastError)
	led.AssertNumberOfCalls(t, "AddCredits", 2)
}

func TestReconciler_CreditsOnlyWhatTheIntentBacks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pis := &intentsMock{}
	led := &ledgerMock{}
	r := NewReconciler(store, pis, led, quietLogger(), 3)

	_, _, err := store.Record(ctx, report("pi_1", "user_1"))
	require.NoError(t, err)
	takeover := report("pi_1", "attacker")
	takeover.Amount = 999999
	_, _, err = store.Record(ctx, takeover)
	require.ErrorIs(t, err, ErrConflict)

	inflated := report("pi_inflated", "user_2")
	inflated.Amount = 999999
	_, _, err = store.Record(ctx, inflated)
	require.NoError(t, err)

	_, _, err = store.Record(ctx, report("pi_bound", "user_3"))
	require.NoError(t, err)
	bound := succeeded("pi_bound")
	bound.Metadata = map[string]string{models.MetaUserID: "user_4"}

	pis.On("Retrieve", mock.Anything, "pi_1").Return(succeeded("pi_1"), nil)
	pis.On("Retrieve", mock.Anything, "pi_inflated").Return(succeeded("pi_inflated"), nil)
	pis.On("Retrieve", mock.Anything, "pi_bound").Return(bound, nil)
	led.On("AddCredits", mock.Anything, mock.MatchedBy(func(req models.AddCreditsRequest) bool {
		return req.UserID == "user_1" && req.Amount == 500
	})).Return(&models.AddCreditsResponse{Message: models.CreditsAddedMessage}, nil).Once()

	sum, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 3, Resolved: 1, Rejected: 2}, sum)
	led.AssertExpectations(t)
	led.AssertNumberOfCalls(t, "AddCredits", 1)

	d, err := store.ByIntent(ctx, "pi_inflated")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyRejected, d.Status)
	assert.Equal(t, "reported amount 999999 does not match payment intent amount 500", *d.LastError)

	d, err = store.ByIntent(ctx, "pi_bound")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyRejected, d.Status)
	assert.Contains(t, *d.LastError, "user_4")
}

func TestReconciler_FailsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pis := &intentsMock{}
	led := &ledgerMock{}
	r := NewReconciler(store, pis, led, quietLogger(), 2)

	_, _, err := store.Record(ctx, report("pi_1", "user_1"))
	require.NoError(t, err)

	pis.On("Retrieve", mock.Anything, "pi_1").Return(nil, errors.New("provider unavailable")).Once()
	pis.On("Retrieve", mock.Anything, "pi_1").Return(succeeded("pi_1"), nil)
	led.On("AddCredits", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	sum, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Retrying)

	sum, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	d, err := store.ByIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyFailed, d.Status)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, "connection refused", *d.LastError)

	sum, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
}

func TestReconciler_ResolveIntent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pis := &intentsMock{}
	led := &ledgerMock{}
	r := NewReconciler(store, pis, led, quietLogger(), 3)

	status, err := r.ResolveIntent(ctx, "pi_unknown")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, _, err = store.Record(ctx, report("pi_1", "user_1"))
	require.NoError(t, err)
	pis.On("Retrieve", mock.Anything, "pi_1").Return(succeeded("pi_1"), nil).Once()
	led.On("AddCredits", mock.Anything, mock.Anything).Return(&models.AddCreditsResponse{Message: models.CreditsAddedMessage}, nil).Once()

	status, err = r.ResolveIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyResolved, status)

	// already resolved: no further provider or ledger calls
	status, err = r.ResolveIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyResolved, status)
	pis.AssertExpectations(t)
	led.AssertExpectations(t)
}

func TestReconciler_SubscribeResolvesOnEvent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pis := &intentsMock{}
	led := &ledgerMock{}
	r := NewReconciler(store, pis, led, quietLogger(), 3)

	_, _, err := store.Record(ctx, report("pi_1", "user_1"))
	require.NoError(t, err)
	pis.On("Retrieve", mock.Anything, "pi_1").Return(succeeded("pi_1"), nil)
	led.On("AddCredits", mock.Anything, mock.Anything).Return(&models.AddCreditsResponse{Message: models.CreditsAddedMessage}, nil)

	bus := EventBus.New()
	require.NoError(t, r.Subscribe(bus))

	bus.Publish(TopicIntentSucceeded, "pi_1")
	bus.WaitAsync()

	d, err := store.ByIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.DiscrepancyResolved, d.Status)
}

func TestReconciler_Schedule(t *testing.T) {
	store := newTestStore(t)
	pis := &intentsMock{}
	led := &ledgerMock{}
	r := NewReconciler(store, pis, led, quietLogger(), 3)

	_, _, err := store.Record(context.Background(), report("pi_1", "user_1"))
	require.NoError(t, err)
	pis.On("Retrieve", mock.Anything, "pi_1").Return(succeeded("pi_1"), nil)
	led.On("AddCredits", mock.Anything, mock.Anything).Return(&models.AddCreditsResponse{Message: models.CreditsAddedMessage}, nil)

	s, err := r.Schedule(time.Hour)
	require.NoError(t, err)
	defer s.Stop()

	assert.Eventually(t, func() bool {
		d, err := store.ByIntent(context.Background(), "pi_1")
		return err == nil && d.Status == models.DiscrepancyResolved
	}, 2*time.Second, 20*time.Millisecond)
}
