package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventlog "github.com/centsible/fincore/eventlog/memory"
	"github.com/centsible/fincore/pkg/webhook"
)

const testSecret = "whsec_test"

// signPayload builds a Stripe-Signature header for body, the way Stripe
// signs deliveries: HMAC-SHA256 over "<timestamp>.<body>".
func signPayload(body []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestEndpoint(t *testing.T) (*Endpoint, *int) {
	t.Helper()
	r, err := webhook.New(webhook.Config{Store: eventlog.New()})
	require.NoError(t, err)

	handlerCalls := 0
	r.Register("invoice.payment_succeeded", func(_ context.Context, _ *webhook.Event, _ string) (*webhook.Outcome, error) {
		handlerCalls++
		return &webhook.Outcome{Action: "payment_recorded"}, nil
	})
	return NewEndpoint(r, testSecret, nil), &handlerCalls
}

const eventBody = `{
	"id": "evt_1",
	"type": "invoice.payment_succeeded",
	"created": 1767225600,
	"data": {"object": {"id": "in_1", "subscription": "sub_1"}}
}`

func TestEndpointProcessesSignedEvent(t *testing.T) {
	endpoint, handlerCalls := newTestEndpoint(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventBody))
	req.Header.Set("Stripe-Signature", signPayload([]byte(eventBody), testSecret, time.Now()))
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *handlerCalls)
	assert.Contains(t, rec.Body.String(), "payment_recorded")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestEndpointRejectsBadSignature(t *testing.T) {
	endpoint, handlerCalls := newTestEndpoint(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventBody))
	req.Header.Set("Stripe-Signature", signPayload([]byte(eventBody), "whsec_wrong", time.Now()))
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, *handlerCalls)
}

func TestEndpointRejectsMissingSignature(t *testing.T) {
	endpoint, handlerCalls := newTestEndpoint(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventBody))
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, *handlerCalls)
}

func TestEndpointRejectsNonPost(t *testing.T) {
	endpoint, _ := newTestEndpoint(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEndpointRequiresConfiguredSecret(t *testing.T) {
	r, err := webhook.New(webhook.Config{Store: eventlog.New()})
	require.NoError(t, err)
	endpoint := NewEndpoint(r, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventBody))
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEndpointAcknowledgesHandlerFailure(t *testing.T) {
	r, err := webhook.New(webhook.Config{Store: eventlog.New()})
	require.NoError(t, err)
	r.Register("invoice.payment_succeeded", func(_ context.Context, _ *webhook.Event, _ string) (*webhook.Outcome, error) {
		return nil, fmt.Errorf("downstream unavailable")
	})
	endpoint := NewEndpoint(r, testSecret, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventBody))
	req.Header.Set("Stripe-Signature", signPayload([]byte(eventBody), testSecret, time.Now()))
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)

	// 200 despite the failure: the event log plus sweeper own the retry,
	// not Stripe's redelivery schedule.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":false`)
}

func TestEndpointDedupsRedelivery(t *testing.T) {
	endpoint, handlerCalls := newTestEndpoint(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventBody))
		req.Header.Set("Stripe-Signature", signPayload([]byte(eventBody), testSecret, time.Now()))
		rec := httptest.NewRecorder()
		endpoint.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, *handlerCalls)
}
