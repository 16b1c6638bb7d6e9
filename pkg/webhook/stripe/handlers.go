package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/centsible/fincore/logging"
	"github.com/centsible/fincore/pkg/webhook"
)

// Event types this adapter registers handlers for.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// Adapter wires Stripe event handlers into a reconciler.
type Adapter struct {
	syncer Syncer
	logger logging.Logger
}

// NewAdapter creates a Stripe webhook adapter.
func NewAdapter(syncer Syncer, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = &logging.NoopLogger{}
	}
	return &Adapter{syncer: syncer, logger: logger}
}

// Register installs the adapter's handlers on the reconciler.
func (a *Adapter) Register(r *webhook.Reconciler) {
	r.Register(EventSubscriptionCreated, a.handleSubscriptionChanged)
	r.Register(EventSubscriptionUpdated, a.handleSubscriptionChanged)
	r.Register(EventSubscriptionDeleted, a.handleSubscriptionDeleted)
	r.Register(EventPaymentSucceeded, a.handlePaymentSucceeded)
	r.Register(EventPaymentFailed, a.handlePaymentFailed)
}

// handleSubscriptionChanged covers created and updated events: both are
// snapshots of the subscription, and the Syncer upserts by subscription
// ID, so processing them identically is safe.
func (a *Adapter) handleSubscriptionChanged(ctx context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	sub, err := parseSubscription(event.Payload)
	if err != nil {
		return nil, err
	}
	sub.TenantID = tenantID
	sub.UpdatedAt = event.Created

	if tenantID == "" {
		a.logger.Warn("subscription event without tenant, skipping sync",
			logging.F("subscription_id", sub.SubscriptionID),
			logging.F("event_type", event.Type),
		)
		return &webhook.Outcome{Action: "subscription_sync_skipped"}, nil
	}

	if err := a.syncer.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", sub.SubscriptionID, err)
	}
	return &webhook.Outcome{
		Action: "subscription_synced",
		Detail: map[string]interface{}{
			"subscription_id": sub.SubscriptionID,
			"status":          sub.Status,
		},
	}, nil
}

func (a *Adapter) handleSubscriptionDeleted(ctx context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	sub, err := parseSubscription(event.Payload)
	if err != nil {
		return nil, err
	}

	if tenantID == "" {
		a.logger.Warn("subscription deletion without tenant, skipping sync",
			logging.F("subscription_id", sub.SubscriptionID),
		)
		return &webhook.Outcome{Action: "subscription_cancel_skipped"}, nil
	}

	if err := a.syncer.MarkSubscriptionCanceled(ctx, tenantID, sub.SubscriptionID, event.Created); err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", sub.SubscriptionID, err)
	}
	return &webhook.Outcome{
		Action: "subscription_canceled",
		Detail: map[string]interface{}{"subscription_id": sub.SubscriptionID},
	}, nil
}

func (a *Adapter) handlePaymentSucceeded(ctx context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Payload, &invoice); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}

	subscriptionID := subscriptionIDFromRaw(event.Payload)
	if subscriptionID == "" {
		// One-off invoice, not a subscription payment.
		return &webhook.Outcome{Action: "payment_ignored"}, nil
	}

	if tenantID == "" {
		a.logger.Warn("payment event without tenant, skipping sync",
			logging.F("invoice_id", invoice.ID),
		)
		return &webhook.Outcome{Action: "payment_sync_skipped"}, nil
	}

	payment := &Payment{
		InvoiceID:      invoice.ID,
		SubscriptionID: subscriptionID,
		TenantID:       tenantID,
		AmountPaid:     invoice.AmountPaid,
		Currency:       string(invoice.Currency),
		PaidAt:         event.Created,
	}
	if invoice.Customer != nil {
		payment.CustomerID = invoice.Customer.ID
	}

	if err := a.syncer.RecordPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("record payment %s: %w", invoice.ID, err)
	}
	return &webhook.Outcome{
		Action: "payment_recorded",
		Detail: map[string]interface{}{
			"invoice_id":      invoice.ID,
			"subscription_id": subscriptionID,
		},
	}, nil
}

// handlePaymentFailed logs and acknowledges. The subscription stays
// active until Stripe actually cancels it; dunning is Stripe's job.
func (a *Adapter) handlePaymentFailed(_ context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Payload, &invoice); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}

	a.logger.Warn("invoice payment failed",
		logging.F("invoice_id", invoice.ID),
		logging.F("tenant_id", tenantID),
	)
	return &webhook.Outcome{
		Action: "payment_failure_noted",
		Detail: map[string]interface{}{"invoice_id": invoice.ID},
	}, nil
}

// parseSubscription extracts the fields the Syncer needs from a raw
// subscription payload. current_period_end is read from the raw JSON:
// the typed struct carries period dates per item, but webhook payloads
// still include the top-level field.
func parseSubscription(payload json.RawMessage) (*Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(payload, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal subscription: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("subscription payload missing id")
	}

	out := &Subscription{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err == nil {
		if v, ok := raw["current_period_end"].(float64); ok {
			out.CurrentPeriodEnd = time.Unix(int64(v), 0).UTC()
		}
	}
	return out, nil
}

// subscriptionIDFromRaw digs the subscription reference out of an
// invoice payload; Stripe serializes it as either an ID string or an
// expanded object.
func subscriptionIDFromRaw(payload json.RawMessage) string {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ""
	}
	switch v := raw["subscription"].(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}
