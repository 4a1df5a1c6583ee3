package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaypoint/internal/producers"
	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

type mockPublisher struct {
	published []types.EventMessage
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, msg types.EventMessage) (types.EventMessage, error) {
	if m.err != nil {
		return msg, m.err
	}
	if msg.EventID == "" {
		msg.EventID = "evt_test"
	}
	m.published = append(m.published, msg)
	return msg, nil
}

type mockVerifier struct{ err error }

func (v *mockVerifier) Verify(_ []byte, _ string, _ string) error { return v.err }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	producers.RegisterAll(b)
	return b.Build()
}

func newTestRouter(t *testing.T, pub *mockPublisher, verifier producers.WebhookVerifier) http.Handler {
	t.Helper()
	logger := &mockLogger{}
	deps := RouterDeps{
		Events: NewEventsHandler(pub, testRegistry(t), 1<<20, logger),
		Logger: logger,
	}
	if verifier != nil {
		deps.Stripe = NewStripeWebhookHandler(verifier, pub, "whsec_test", 1<<20, logger)
	}
	return NewRouter(deps)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestFireEventAccepted(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, nil)

	rec := postJSON(t, router, "/v1/events", types.EventMessage{
		Trigger: types.TriggerPurchaseComplete,
		Payload: map[string]any{"name": "Ada", "total": "49.00"},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.published, 1)

	var resp struct {
		Data types.EventMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "evt_test", resp.Data.EventID)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestFireEventUnknownTrigger(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, nil)

	rec := postJSON(t, router, "/v1/events", types.EventMessage{Trigger: "order_shipped"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.published)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeRuleUnknownTrigger), resp.Error.Code)
}

func TestFireEventMissingTrigger(t *testing.T) {
	router := newTestRouter(t, &mockPublisher{}, nil)

	rec := postJSON(t, router, "/v1/events", map[string]any{"payload": map[string]any{}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFireEventEmptyBody(t *testing.T) {
	router := newTestRouter(t, &mockPublisher{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFireEventPublishFailure(t *testing.T) {
	router := newTestRouter(t, &mockPublisher{err: errors.New("queue down")}, nil)

	rec := postJSON(t, router, "/v1/events", types.EventMessage{Trigger: types.TriggerUserRegistered})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFireEventGzipBody(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, nil)

	raw, err := json.Marshal(types.EventMessage{
		Trigger: types.TriggerLicenseActivated,
		Payload: map[string]any{"license_key": "abc-123"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.published, 1)
	assert.Equal(t, types.TriggerLicenseActivated, pub.published[0].Trigger)
}

func TestTriggerCatalog(t *testing.T) {
	router := newTestRouter(t, &mockPublisher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/triggers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			ID    string            `json:"id"`
			Label string            `json:"label"`
			Hints []types.HintEntry `json:"hints"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 8)

	hints := make(map[string][]types.HintEntry)
	for _, entry := range resp.Data {
		hints[entry.ID] = entry.Hints
	}

	// Universal user hints show up on triggers with a customer context.
	assert.NotEmpty(t, hints[string(types.TriggerPurchaseComplete)])

	// license_generated has %site_count% removed from its hint set.
	for _, h := range hints[string(types.TriggerLicenseGenerated)] {
		assert.NotEqual(t, "site_count", h.Token)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &mockPublisher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTraceHeaderPropagated(t *testing.T) {
	router := newTestRouter(t, &mockPublisher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(TraceHeader, "trace_provided")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "trace_provided", rec.Header().Get(TraceHeader))
}

func stripeCheckoutPayload() []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1760000000,
		"data": {"object": {
			"customer_details": {"name": "Ada Lovelace", "email": "ada@example.com"},
			"amount_total": 4900,
			"currency": "usd",
			"payment_intent": "pi_1",
			"metadata": {"download_id": "42", "download": "Analytical Engine Plans"}
		}}
	}`)
}

func TestStripeWebhookTranslatesAndEnqueues(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, &mockVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(stripeCheckoutPayload()))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pub.published, 1)

	msg := pub.published[0]
	assert.Equal(t, types.TriggerPurchaseComplete, msg.Trigger)
	assert.Equal(t, "Ada Lovelace", msg.Payload["name"])
	assert.Equal(t, "42", msg.Payload["download_id"])
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, &mockVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(stripeCheckoutPayload()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pub.published)
}

func TestStripeWebhookBadSignature(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, &mockVerifier{err: errors.New("signature mismatch")})

	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(stripeCheckoutPayload()))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pub.published)
}

func TestStripeWebhookUnhandledTypeAcked(t *testing.T) {
	pub := &mockPublisher{}
	router := newTestRouter(t, pub, &mockVerifier{})

	payload := []byte(`{"id": "evt_2", "type": "customer.created", "data": {"object": {}}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, pub.published)
}

func TestStripeWebhookEnqueueFailureStillAcked(t *testing.T) {
	pub := &mockPublisher{err: errors.New("queue down")}
	router := newTestRouter(t, pub, &mockVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(stripeCheckoutPayload()))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Acked so Stripe does not retry into the same outage.
	require.Equal(t, http.StatusOK, rec.Code)
}
