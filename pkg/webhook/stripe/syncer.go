// Package stripe adapts Stripe billing webhooks to the webhook
// reconciler: signature-verified deliveries become reconciler events,
// and typed handlers sync subscription and payment state through a
// Syncer owned by the application.
package stripe

import (
	"context"
	"time"
)

// ProviderName identifies this adapter in event records and metrics.
const ProviderName = "stripe"

// Subscription is the provider-independent view of a Stripe
// subscription that handlers push into the application.
type Subscription struct {
	SubscriptionID   string
	CustomerID       string
	TenantID         string
	Status           string
	PriceID          string
	CurrentPeriodEnd time.Time

	// UpdatedAt carries the provider event timestamp. Syncers use it to
	// discard stale snapshots when events arrive out of order.
	UpdatedAt time.Time
}

// Payment records one successful invoice payment.
type Payment struct {
	InvoiceID      string
	SubscriptionID string
	CustomerID     string
	TenantID       string
	AmountPaid     int64
	Currency       string
	PaidAt         time.Time
}

// Syncer is the business persistence boundary. Implementations must
// upsert by business key (subscription ID, invoice ID), never blindly
// insert: the reconciler dedups by provider event ID, but Stripe can
// deliver the same business fact under two different event IDs.
type Syncer interface {
	// UpsertSubscription creates or updates the subscription row keyed
	// by SubscriptionID.
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// RecordPayment records a payment keyed by InvoiceID.
	RecordPayment(ctx context.Context, payment *Payment) error

	// MarkSubscriptionCanceled flips the subscription keyed by
	// subscriptionID to canceled.
	MarkSubscriptionCanceled(ctx context.Context, tenantID, subscriptionID string, at time.Time) error
}
