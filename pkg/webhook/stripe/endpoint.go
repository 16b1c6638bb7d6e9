package stripe

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/centsible/fincore/logging"
	"github.com/centsible/fincore/pkg/webhook"
)

// maxBodyBytes bounds webhook payload size; Stripe events are far
// smaller than this.
const maxBodyBytes = 256 * 1024

// Endpoint is the HTTP receiver for Stripe webhooks. It verifies the
// delivery signature, converts the event, and hands it to the
// reconciler.
//
// Response policy follows Stripe's retry semantics: 2xx acknowledges the
// delivery, anything else asks Stripe to retry. Handler failures are
// acknowledged with 200 and tracked in the event log (the sweeper
// re-drives them); only unverifiable or malformed input gets a 4xx.
type Endpoint struct {
	reconciler    *webhook.Reconciler
	webhookSecret string
	logger        logging.Logger
}

// NewEndpoint creates the webhook HTTP handler.
func NewEndpoint(reconciler *webhook.Reconciler, webhookSecret string, logger logging.Logger) *Endpoint {
	if logger == nil {
		logger = &logging.NoopLogger{}
	}
	return &Endpoint{
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if e.webhookSecret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	stripeEvent, err := stripe.ConstructEvent(body, sig, e.webhookSecret)
	if err != nil {
		e.logger.Warn("stripe webhook signature verification failed",
			logging.F("error", err.Error()),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event := &webhook.Event{
		Provider:        ProviderName,
		ProviderEventID: stripeEvent.ID,
		Type:            string(stripeEvent.Type),
		Payload:         json.RawMessage(stripeEvent.Data.Raw),
		Created:         time.Unix(stripeEvent.Created, 0).UTC(),
	}

	outcome, err := e.reconciler.Process(r.Context(), event)
	if err != nil {
		var handlerErr *webhook.HandlerError
		if errors.As(err, &handlerErr) {
			// Handler failures are tracked in the event log, not via
			// HTTP status: a non-2xx would make Stripe retry on its own
			// schedule on top of the sweeper.
			e.respond(w, http.StatusOK, outcome)
			return
		}
		if errors.Is(err, webhook.ErrMalformedEvent) {
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	e.respond(w, http.StatusOK, outcome)
}

func (e *Endpoint) respond(w http.ResponseWriter, status int, outcome *webhook.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if outcome == nil {
		outcome = &webhook.Outcome{}
	}
	_ = json.NewEncoder(w).Encode(outcome)
}
