package webhook

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one verified webhook delivery. Signature verification happens
// before an Event is constructed; the reconciler only ever sees events
// whose origin has been established.
type Event struct {
	// Provider identifies the event source ("stripe", "plaid").
	Provider string

	// ProviderEventID is the provider-assigned unique event ID. Empty
	// when the provider does not assign one; dedup is then best effort.
	ProviderEventID string

	// Type is the provider's event type string
	// (e.g. "invoice.payment_succeeded").
	Type string

	// TenantID, when non-empty, skips tenant resolution.
	TenantID string

	// Payload is the provider's raw event body.
	Payload json.RawMessage

	// Created is the provider-side event timestamp.
	Created time.Time
}

// Outcome describes what processing an event did. The webhook endpoint
// serializes it into the HTTP response body; the event log retains it
// so duplicate deliveries can return the identical stored outcome.
type Outcome struct {
	Processed bool                   `json:"processed"`
	Action    string                 `json:"action"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// Actions set by the reconciler itself. Handlers use their own action
// strings for successful domain work (e.g. "subscription_synced").
const (
	// ActionDuplicate marks a delivery short-circuited by the dedup gate.
	ActionDuplicate = "duplicate"

	// ActionNoHandler marks an event type nothing is registered for.
	// Forward compatibility: providers add event types this system does
	// not act on yet.
	ActionNoHandler = "no_handler"

	// ActionFailed marks a handler failure. The event record stays
	// unprocessed so redelivery can retry it.
	ActionFailed = "failed"
)

// Handler processes one event for one tenant. Handlers are pure
// functions of (event, tenantID); retry logic belongs to the caller or
// queue layer, never inside a handler. tenantID may be empty when the
// tenant could not be resolved; handlers must then skip tenant-scoped
// side effects.
//
// Payment and subscription handlers must additionally be idempotent by
// business key (subscription ID, invoice ID): the dedup gate keys on the
// provider event ID, but providers can redeliver the same business fact
// under a different event ID.
type Handler func(ctx context.Context, event *Event, tenantID string) (*Outcome, error)

// TenantResolver maps event metadata to a tenant identifier. Returns an
// empty string when no tenant can be determined; the event is still
// processed, with tenant-scoped side effects skipped.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, event *Event) (string, error)
}

// TenantResolverFunc adapts a function to the TenantResolver interface.
type TenantResolverFunc func(ctx context.Context, event *Event) (string, error)

func (f TenantResolverFunc) ResolveTenant(ctx context.Context, event *Event) (string, error) {
	return f(ctx, event)
}

// Record is one row in the webhook event log. Records are never deleted
// by this subsystem; the log doubles as an audit trail and cleanup is an
// external concern.
type Record struct {
	ID              string
	Provider        string
	ProviderEventID string
	EventType       string
	TenantID        string
	Payload         json.RawMessage
	Processed       bool
	ProcessedAt     *time.Time
	ErrorMessage    string
	Outcome         json.RawMessage
	ReceivedAt      time.Time
}

// Store persists webhook event records, keyed by (provider,
// provider event ID).
type Store interface {
	// Get returns the record for a provider event ID, or nil when the
	// event has not been seen.
	Get(ctx context.Context, provider, providerEventID string) (*Record, error)

	// Create persists a new record. Called before handler dispatch so a
	// crash mid-handler leaves a recoverable unprocessed row.
	Create(ctx context.Context, rec *Record) error

	// MarkProcessed flips the record to processed and stores the outcome.
	MarkProcessed(ctx context.Context, id string, outcome json.RawMessage, at time.Time) error

	// MarkFailed records a handler failure, leaving the record
	// unprocessed so redelivery can retry it.
	MarkFailed(ctx context.Context, id, errorMessage string) error

	// ListUnprocessed returns unprocessed records received before cutoff,
	// oldest first, up to limit. Used by the redelivery sweeper.
	ListUnprocessed(ctx context.Context, cutoff time.Time, limit int) ([]*Record, error)
}
