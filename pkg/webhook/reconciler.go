// Package webhook implements idempotent reconciliation of inbound
// payment and account-sync webhook events against a durable event log.
//
// The central invariant: no handler is invoked twice for the same
// provider event ID. A second delivery of an already-processed event
// short-circuits and returns the stored outcome, making zero downstream
// writes. A delivery of an event whose earlier attempt failed is
// re-dispatched, which is the whole point of leaving failed records
// unprocessed.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/centsible/fincore/logging"
)

// Config holds reconciler configuration.
type Config struct {
	// Store is the durable event log (required).
	Store Store

	// Resolver maps events to tenants. Optional; without one, events
	// carry only the tenant ID embedded in their metadata.
	Resolver TenantResolver

	// Logger is used for structured logging (default: NoopLogger).
	Logger logging.Logger

	// Metrics tracks dispositions (default: NoopMetrics).
	Metrics Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Reconciler deduplicates and dispatches webhook events.
type Reconciler struct {
	store    Store
	resolver TenantResolver
	handlers map[string]Handler
	logger   logging.Logger
	metrics  Metrics
	now      func() time.Time
}

// New creates a new reconciler. Handlers are registered with Register
// before the first Process call; registration is not synchronized and
// belongs in startup wiring.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Reconciler{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		handlers: make(map[string]Handler),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}, nil
}

// Register installs the handler for an event type, replacing any
// previous registration.
func (r *Reconciler) Register(eventType string, h Handler) {
	r.handlers[eventType] = h
}

// Process runs one verified event through the reconciliation state
// machine: dedup, record-before-dispatch, tenant resolution, handler
// dispatch, outcome persistence.
//
// The returned error is non-nil for malformed input, event-log store
// failures, and handler failures (wrapped in *HandlerError). Handler
// failures still return an Outcome so the endpoint can respond 200 and
// leave retries to the provider.
func (r *Reconciler) Process(ctx context.Context, event *Event) (*Outcome, error) {
	if event == nil || event.Type == "" {
		return nil, ErrMalformedEvent
	}

	start := time.Now()
	outcome, disposition, err := r.process(ctx, event)
	if disposition != "" {
		r.metrics.RecordEvent(event.Provider, event.Type, disposition)
	}
	r.metrics.RecordProcessingDuration(event.Provider, event.Type, time.Since(start))
	return outcome, err
}

func (r *Reconciler) process(ctx context.Context, event *Event) (*Outcome, string, error) {
	rec, err := r.lookupOrCreate(ctx, event)
	if err != nil {
		return nil, "", err
	}

	if rec.Processed {
		// Dedup hit: the handler already ran for this provider event ID.
		// Return the stored outcome untouched so the second delivery's
		// response matches the first byte for byte.
		outcome := &Outcome{Processed: true, Action: ActionDuplicate, TenantID: rec.TenantID}
		if len(rec.Outcome) > 0 {
			var stored Outcome
			if jsonErr := json.Unmarshal(rec.Outcome, &stored); jsonErr == nil {
				outcome = &stored
			}
		}
		r.logger.Debug("duplicate webhook delivery skipped",
			logging.F("provider", event.Provider),
			logging.F("event_id", event.ProviderEventID),
			logging.F("event_type", event.Type),
		)
		return outcome, ActionDuplicate, nil
	}

	tenantID := r.resolveTenant(ctx, event)

	handler, ok := r.handlers[event.Type]
	if !ok {
		outcome := &Outcome{Processed: true, Action: ActionNoHandler, TenantID: tenantID}
		r.logger.Info("no handler registered for event type",
			logging.F("provider", event.Provider),
			logging.F("event_type", event.Type),
		)
		return outcome, ActionNoHandler, r.persistOutcome(ctx, rec.ID, outcome)
	}

	handlerOutcome, err := handler(ctx, event, tenantID)
	if err != nil {
		herr := &HandlerError{
			Provider:        event.Provider,
			EventType:       event.Type,
			ProviderEventID: event.ProviderEventID,
			Err:             err,
		}
		if markErr := r.store.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			r.logger.Error("failed to record handler failure",
				logging.F("event_id", event.ProviderEventID),
				logging.F("error", markErr.Error()),
			)
		}
		r.logger.Error("webhook handler failed",
			logging.F("provider", event.Provider),
			logging.F("event_type", event.Type),
			logging.F("event_id", event.ProviderEventID),
			logging.F("error", err.Error()),
		)
		return &Outcome{Processed: false, Action: ActionFailed, TenantID: tenantID}, ActionFailed, herr
	}

	if handlerOutcome == nil {
		handlerOutcome = &Outcome{}
	}
	handlerOutcome.Processed = true
	if handlerOutcome.TenantID == "" {
		handlerOutcome.TenantID = tenantID
	}
	return handlerOutcome, "processed", r.persistOutcome(ctx, rec.ID, handlerOutcome)
}

// lookupOrCreate finds the existing record for the event or persists a
// new unprocessed one before dispatch, so a crash mid-handler leaves a
// recoverable row rather than no trace at all.
func (r *Reconciler) lookupOrCreate(ctx context.Context, event *Event) (*Record, error) {
	eventID := event.ProviderEventID
	if eventID == "" {
		// Without a provider-assigned ID every delivery is unique; the
		// synthetic ID keeps the audit row but buys no dedup.
		eventID = "anon-" + uuid.NewString()
		r.logger.Warn("event has no provider event id, dedup disabled for this delivery",
			logging.F("provider", event.Provider),
			logging.F("event_type", event.Type),
		)
	} else {
		existing, err := r.store.Get(ctx, event.Provider, eventID)
		if err != nil {
			return nil, fmt.Errorf("webhook: event log lookup: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	rec := &Record{
		ID:              uuid.NewString(),
		Provider:        event.Provider,
		ProviderEventID: eventID,
		EventType:       event.Type,
		TenantID:        event.TenantID,
		Payload:         event.Payload,
		Processed:       false,
		ReceivedAt:      r.now().UTC(),
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("webhook: event log create: %w", err)
	}
	return rec, nil
}

func (r *Reconciler) resolveTenant(ctx context.Context, event *Event) string {
	if event.TenantID != "" {
		return event.TenantID
	}
	if r.resolver == nil {
		return ""
	}

	tenantID, err := r.resolver.ResolveTenant(ctx, event)
	if err != nil || tenantID == "" {
		// Never silently drop the event: the handler still runs, with
		// tenant-scoped side effects skipped.
		fields := []logging.Field{
			logging.F("provider", event.Provider),
			logging.F("event_type", event.Type),
			logging.F("event_id", event.ProviderEventID),
		}
		if err != nil {
			fields = append(fields, logging.F("error", err.Error()))
		}
		r.logger.Warn("tenant could not be resolved for event", fields...)
		return ""
	}
	return tenantID
}

func (r *Reconciler) persistOutcome(ctx context.Context, recordID string, outcome *Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("webhook: marshal outcome: %w", err)
	}
	if err := r.store.MarkProcessed(ctx, recordID, data, r.now().UTC()); err != nil {
		return fmt.Errorf("webhook: persist outcome: %w", err)
	}
	return nil
}
