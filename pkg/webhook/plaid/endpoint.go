package plaid

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/centsible/fincore/logging"
	"github.com/centsible/fincore/pkg/webhook"
)

const maxBodyBytes = 128 * 1024

// Verifier checks a delivery's authenticity before processing. Plaid
// signs webhooks with a JWT in the Plaid-Verification header whose key
// is fetched from the Plaid API; that fetch lives application-side, so
// verification is injected rather than built in.
type Verifier interface {
	Verify(r *http.Request, body []byte) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(r *http.Request, body []byte) error

func (f VerifierFunc) Verify(r *http.Request, body []byte) error {
	return f(r, body)
}

// Endpoint is the HTTP receiver for Plaid webhooks.
type Endpoint struct {
	reconciler *webhook.Reconciler
	verifier   Verifier
	logger     logging.Logger
	now        func() time.Time
}

// NewEndpoint creates the webhook HTTP handler. verifier may be nil in
// environments where deliveries arrive over a trusted channel.
func NewEndpoint(reconciler *webhook.Reconciler, verifier Verifier, logger logging.Logger) *Endpoint {
	if logger == nil {
		logger = &logging.NoopLogger{}
	}
	return &Endpoint{
		reconciler: reconciler,
		verifier:   verifier,
		logger:     logger,
		now:        time.Now,
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
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

	if e.verifier != nil {
		if err := e.verifier.Verify(r, body); err != nil {
			e.logger.Warn("plaid webhook verification failed",
				logging.F("error", err.Error()),
			)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	payload, err := ParsePayload(body)
	if err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	event := NewEvent(payload, body, e.now())

	outcome, err := e.reconciler.Process(r.Context(), event)
	if err != nil {
		var handlerErr *webhook.HandlerError
		if errors.As(err, &handlerErr) {
			// Handler failures are acknowledged; the sweeper re-drives
			// the stored record rather than relying on Plaid redelivery.
			e.respond(w, outcome)
			return
		}
		if errors.Is(err, webhook.ErrMalformedEvent) {
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	e.respond(w, outcome)
}

func (e *Endpoint) respond(w http.ResponseWriter, outcome *webhook.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if outcome == nil {
		outcome = &webhook.Outcome{}
	}
	_ = json.NewEncoder(w).Encode(outcome)
}
