package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func newTestStripe(t *testing.T, h http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})

	return NewStripe("sk_test_123", testWebhookSecret, logging.Nop{},
		WithBackend(backend),
		WithBackoff(func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
		}),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func paidSession() map[string]any {
	return map[string]any{
		"id":             "cs_123",
		"object":         "checkout.session",
		"status":         "complete",
		"payment_status": "paid",
		"payment_intent": "pi_123",
		"amount_total":   5000,
		"currency":       "usd",
		"customer_details": map[string]any{
			"email": "student@example.com",
		},
		"metadata": map[string]string{"applicationId": "A1", "scholarshipId": "S1"},
	}
}

func TestRetrieveSession_Paid(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, paidSession())
	})

	got, err := s.RetrieveSession(context.Background(), "cs_123")
	require.NoError(t, err)

	assert.True(t, got.IsPaid())
	assert.Equal(t, "complete", got.Status)
	assert.Equal(t, "pi_123", got.TransactionID)
	assert.Equal(t, int64(5000), got.AmountTotal)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "student@example.com", got.CustomerEmail)
	assert.Equal(t, "A1", got.Metadata[common.MetadataApplicationID])
}

func TestRetrieveSession_Open(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "cs_open", "object": "checkout.session", "status": "open", "payment_status": "unpaid",
		})
	})

	got, err := s.RetrieveSession(context.Background(), "cs_open")
	require.NoError(t, err)
	assert.False(t, got.IsPaid())
	assert.Empty(t, got.TransactionID)
	assert.NotNil(t, got.Metadata)
}

func TestRetrieveSession_NotFoundIsFinal(t *testing.T) {
	var calls atomic.Int32
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{
			"type": "invalid_request_error", "code": "resource_missing", "message": "No such checkout.session: 'cs_nope'",
		}})
	})

	_, err := s.RetrieveSession(context.Background(), "cs_nope")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetrieveSession_EmptyID(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := s.RetrieveSession(context.Background(), "")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestRetrieveSession_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"type": "api_error", "message": "try later"}})
			return
		}
		writeJSON(w, http.StatusOK, paidSession())
	})

	got, err := s.RetrieveSession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", got.TransactionID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrieveSession_GivesUpAsUnavailable(t *testing.T) {
	var calls atomic.Int32
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"type": "api_error", "message": "boom"}})
	})

	_, err := s.RetrieveSession(context.Background(), "cs_123")
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	assert.True(t, common.Retryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrieveSession_ContextDeadline(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.RetrieveSession(ctx, "cs_slow")
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestCreateSession_SendsLineItemAndMetadata(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	var calls atomic.Int32
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "5000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "usd", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "STEM Grant", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "A1", r.PostForm.Get("metadata[applicationId]"))
		assert.Equal(t, "student@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, "https://app/payment-success?session_id={CHECKOUT_SESSION_ID}", r.PostForm.Get("success_url"))

		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "rate limited"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "cs_new", "object": "checkout.session", "url": "https://checkout.stripe.test/c/cs_new",
			"status": "open", "payment_status": "unpaid",
		})
	})

	got, err := s.CreateSession(context.Background(), CreateSessionRequest{
		AmountMinor:   5000,
		Currency:      "usd",
		ProductName:   "STEM Grant",
		CustomerEmail: "student@example.com",
		Metadata:      map[string]string{common.MetadataApplicationID: "A1"},
		SuccessURL:    "https://app/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://app/payment-cancelled?applicationId=A1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", got.ID)
	assert.Equal(t, "https://checkout.stripe.test/c/cs_new", got.URL)

	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1], "retries reuse the idempotency key")
}

func TestCreateSession_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{
			"type": "invalid_request_error", "code": "parameter_invalid_integer", "message": "bad amount",
		}})
	})

	_, err := s.CreateSession(context.Background(), CreateSessionRequest{AmountMinor: -1, Currency: "usd", ProductName: "x", IdempotencyKey: "k1"})
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func signedEvent(t *testing.T, secret string, event map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return payload, signed.Header
}

func TestParseWebhook(t *testing.T) {
	s := NewStripe("sk_test", testWebhookSecret, logging.Nop{})

	t.Run("checkout completed", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, map[string]any{
			"id": "evt_1", "object": "event", "type": "checkout.session.completed",
			"data": map[string]any{"object": paidSession()},
		})

		ev, err := s.ParseWebhook(payload, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, EventCheckoutCompleted, ev.Type)
		require.NotNil(t, ev.Session)
		assert.Equal(t, "cs_123", ev.Session.ID)
		assert.Equal(t, "pi_123", ev.Session.TransactionID)
	})

	t.Run("other event type has no session", func(t *testing.T) {
		payload, header := signedEvent(t, testWebhookSecret, map[string]any{
			"id": "evt_2", "object": "event", "type": "customer.created",
			"data": map[string]any{"object": map[string]any{"id": "cus_1"}},
		})

		ev, err := s.ParseWebhook(payload, header)
		require.NoError(t, err)
		assert.Nil(t, ev.Session)
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload, header := signedEvent(t, "whsec_other", map[string]any{"id": "evt_3", "object": "event", "type": "checkout.session.completed"})

		_, err := s.ParseWebhook(payload, header)
		require.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := s.ParseWebhook([]byte(`{}`), "")
		require.ErrorIs(t, err, common.ErrInvalidInput)
	})
}
