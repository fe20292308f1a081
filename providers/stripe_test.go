package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/a2n2k3p4/payments-relay/intents"
	"github.com/a2n2k3p4/payments-relay/models"
)

type recorded struct {
	method  string
	path    string
	form    url.Values
	headers http.Header
}

func newTestStripe(t *testing.T, status int, body string) (*Stripe, *recorded) {
	t.Helper()

	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.form = r.PostForm
		rec.headers = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	s, err := NewStripe("sk_test_123", "whsec_test", NewBackends(stripe.BackendConfig{
		URL:           stripe.String(srv.URL),
		HTTPClient:    srv.Client(),
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
	}))
	require.NoError(t, err)
	return s, rec
}

const intentJSON = `{
  "id": "pi_123",
  "object": "payment_intent",
  "client_secret": "pi_123_secret_456",
  "amount": 2000,
  "currency": "usd",
  "status": "requires_payment_method",
  "description": "order",
  "payment_method": "pm_789",
  "metadata": {"transaction_type": "export", "currency_original": "USD"},
  "shipping": {"name": "Ann", "address": {"line1": "1 Road", "line2": "", "city": "Austin", "state": "TX", "postal_code": "73301", "country": "US"}}
}`

func TestStripe_DoesNotRetryFailedCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Stripe-Should-Retry", "true")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"type": "api_error", "message": "Stripe is temporarily unavailable."}}`))
	}))
	defer srv.Close()

	s, err := NewStripe("sk_test_123", "", NewBackends(stripe.BackendConfig{
		URL:           stripe.String(srv.URL),
		HTTPClient:    srv.Client(),
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
	}))
	require.NoError(t, err)

	_, err = s.RetrieveIntent(context.Background(), "pi_123")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = s.CreateIntent(context.Background(), &models.IntentParams{Amount: 500, Currency: "inr", Customer: "cus_1", Description: "order"})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewStripe_RequiresKey(t *testing.T) {
	_, err := NewStripe("", "", nil)
	assert.ErrorIs(t, err, ErrMissingSecretKey)
}

func TestStripe_CreateIntent_SendsParams(t *testing.T) {
	s, rec := newTestStripe(t, http.StatusOK, intentJSON)

	line2 := "Unit 2"
	desc := "order"
	params := &models.IntentParams{
		Amount:             2000,
		Currency:           "usd",
		Customer:           "cus_1",
		Description:        "order",
		PaymentMethodTypes: []string{"card"},
		Metadata: models.Metadata{
			TransactionType:   "export",
			CurrencyOriginal:  "USD",
			DescriptionExport: &desc,
			HasShipping:       true,
			ShippingCountry:   stripe.String("US"),
		},
		Shipping: &models.Shipping{
			Name:    "Ann",
			Address: models.Address{Line1: "1 Road", Line2: &line2, City: "Austin", State: "TX", PostalCode: "73301", Country: "US"},
		},
		PaymentMethodOptions: &models.PaymentMethodOptions{Card: &models.CardOptions{RequestThreeDSecure: "automatic"}},
		IdempotencyKey:       "idem-42",
	}

	pi, err := s.CreateIntent(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/v1/payment_intents", rec.path)
	assert.Equal(t, "2000", rec.form.Get("amount"))
	assert.Equal(t, "usd", rec.form.Get("currency"))
	assert.Equal(t, "cus_1", rec.form.Get("customer"))
	assert.Equal(t, "card", rec.form.Get("payment_method_types[0]"))
	assert.Equal(t, "export", rec.form.Get("metadata[transaction_type]"))
	assert.Equal(t, "order", rec.form.Get("metadata[description_export]"))
	assert.Equal(t, "true", rec.form.Get("metadata[has_shipping]"))
	assert.Equal(t, "US", rec.form.Get("metadata[shipping_country]"))
	assert.Equal(t, "automatic", rec.form.Get("payment_method_options[card][request_three_d_secure]"))
	assert.Equal(t, "73301", rec.form.Get("shipping[address][postal_code]"))
	assert.Equal(t, "Unit 2", rec.form.Get("shipping[address][line2]"))
	assert.Equal(t, "idem-42", rec.headers.Get("Idempotency-Key"))

	assert.Equal(t, "pi_123", pi.ID)
	assert.Equal(t, "pi_123_secret_456", pi.ClientSecret)
	assert.Equal(t, int64(2000), pi.Amount)
	assert.Equal(t, "requires_payment_method", pi.Status)
	assert.Equal(t, "pm_789", pi.PaymentMethod)
	require.NotNil(t, pi.Shipping)
	assert.Nil(t, pi.Shipping.Address.Line2)
	assert.Equal(t, "73301", pi.Shipping.Address.PostalCode)
}

func TestStripe_CreateIntent_DomesticOmitsOptionalFields(t *testing.T) {
	s, rec := newTestStripe(t, http.StatusOK, intentJSON)

	_, err := s.CreateIntent(context.Background(), &models.IntentParams{
		Amount:             500,
		Currency:           "inr",
		Customer:           "cus_1",
		Description:        "order",
		PaymentMethodTypes: []string{"card"},
		Metadata:           models.Metadata{TransactionType: "domestic", CurrencyOriginal: "INR"},
	})
	require.NoError(t, err)

	for _, key := range []string{
		"metadata[description_export]",
		"metadata[has_shipping]",
		"metadata[shipping_country]",
		"payment_method_options[card][request_three_d_secure]",
		"shipping[name]",
	} {
		_, ok := rec.form[key]
		assert.False(t, ok, key)
	}
}

func TestStripe_ProviderErrorMessage(t *testing.T) {
	s, _ := newTestStripe(t, http.StatusPaymentRequired,
		`{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`)

	_, err := s.ConfirmIntent(context.Background(), models.ConfirmIntentRequest{ID: "pi_123", PaymentMethod: "pm_card_chargeDeclined"})
	require.Error(t, err)

	perr := &intents.ProviderError{Op: "confirm", Err: err}
	assert.Equal(t, "Your card was declined.", perr.Message())
}

func TestStripe_ConfirmAndRetrieve(t *testing.T) {
	s, rec := newTestStripe(t, http.StatusOK, intentJSON)

	pi, err := s.ConfirmIntent(context.Background(), models.ConfirmIntentRequest{ID: "pi_123", PaymentMethod: "pm_789"})
	require.NoError(t, err)
	assert.Equal(t, "/v1/payment_intents/pi_123/confirm", rec.path)
	assert.Equal(t, "pm_789", rec.form.Get("payment_method"))
	assert.Equal(t, "pm_789", pi.PaymentMethod)

	pi, err = s.RetrieveIntent(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/v1/payment_intents/pi_123", rec.path)
	assert.Equal(t, "order", pi.Description)
	assert.Equal(t, map[string]string{"transaction_type": "export", "currency_original": "USD"}, pi.Metadata)
}

// signPayload builds a Stripe-Signature header the way Stripe signs webhooks.
func signPayload(secret string, body []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), body)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripe_ConstructEvent(t *testing.T) {
	s, err := NewStripe("sk_test_123", "whsec_test", nil)
	require.NoError(t, err)

	body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_123","object":"payment_intent"}}}`)

	ev, err := s.ConstructEvent(body, signPayload("whsec_test", body, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", string(ev.Type))

	_, err = s.ConstructEvent(body, signPayload("whsec_other", body, time.Now()))
	assert.Error(t, err)
}
