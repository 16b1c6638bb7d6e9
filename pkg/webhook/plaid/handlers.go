package plaid

import (
	"context"
	"fmt"

	"github.com/centsible/fincore/logging"
	"github.com/centsible/fincore/pkg/webhook"
)

// Adapter wires Plaid event handlers into a reconciler.
type Adapter struct {
	transactions TransactionSyncer
	items        ItemUpdater
	logger       logging.Logger
}

// NewAdapter creates a Plaid webhook adapter. items may be nil when the
// application does not track item lifecycle; the corresponding handlers
// then acknowledge without side effects.
func NewAdapter(transactions TransactionSyncer, items ItemUpdater, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = &logging.NoopLogger{}
	}
	return &Adapter{transactions: transactions, items: items, logger: logger}
}

// Register installs the adapter's handlers on the reconciler.
func (a *Adapter) Register(r *webhook.Reconciler) {
	r.Register(TypeTransactions+"."+CodeSyncUpdatesAvailable, a.handleTransactionsUpdated)
	r.Register(TypeTransactions+"."+CodeInitialUpdate, a.handleTransactionsUpdated)
	r.Register(TypeTransactions+"."+CodeHistoricalUpdate, a.handleTransactionsUpdated)
	r.Register(TypeTransactions+"."+CodeDefaultUpdate, a.handleTransactionsUpdated)
	r.Register(TypeItem+"."+CodeError, a.handleItemError)
	r.Register(TypeItem+"."+CodePendingExpiration, a.handleItemError)
	r.Register(TypeItem+"."+CodeUserPermissionRevoked, a.handleItemRevoked)
}

// handleTransactionsUpdated covers every transactions code: all of them
// mean "pull from transactions/sync", and the cursor makes the pull
// idempotent regardless of which code triggered it.
func (a *Adapter) handleTransactionsUpdated(ctx context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	p, err := ParsePayload(event.Payload)
	if err != nil {
		return nil, err
	}

	if tenantID == "" {
		a.logger.Warn("transactions webhook without tenant, skipping sync",
			logging.F("item_id", p.ItemID),
			logging.F("webhook_code", p.WebhookCode),
		)
		return &webhook.Outcome{Action: "transaction_sync_skipped"}, nil
	}

	applied, err := a.transactions.SyncTransactions(ctx, tenantID, p.ItemID)
	if err != nil {
		return nil, fmt.Errorf("sync transactions for item %s: %w", p.ItemID, err)
	}
	return &webhook.Outcome{
		Action: "transactions_synced",
		Detail: map[string]interface{}{
			"item_id":              p.ItemID,
			"transactions_applied": applied,
		},
	}, nil
}

func (a *Adapter) handleItemError(ctx context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	p, err := ParsePayload(event.Payload)
	if err != nil {
		return nil, err
	}

	errorCode := p.WebhookCode
	if p.Error != nil {
		errorCode = p.Error.ErrorCode
	}

	a.logger.Warn("plaid item needs attention",
		logging.F("item_id", p.ItemID),
		logging.F("tenant_id", tenantID),
		logging.F("error_code", errorCode),
	)

	if tenantID == "" || a.items == nil {
		return &webhook.Outcome{Action: "item_error_noted"}, nil
	}
	if err := a.items.MarkItemError(ctx, tenantID, p.ItemID, errorCode); err != nil {
		return nil, fmt.Errorf("mark item %s errored: %w", p.ItemID, err)
	}
	return &webhook.Outcome{
		Action: "item_error_recorded",
		Detail: map[string]interface{}{"item_id": p.ItemID, "error_code": errorCode},
	}, nil
}

func (a *Adapter) handleItemRevoked(ctx context.Context, event *webhook.Event, tenantID string) (*webhook.Outcome, error) {
	p, err := ParsePayload(event.Payload)
	if err != nil {
		return nil, err
	}

	if tenantID == "" || a.items == nil {
		a.logger.Warn("item revocation without tenant or updater",
			logging.F("item_id", p.ItemID),
		)
		return &webhook.Outcome{Action: "item_revocation_noted"}, nil
	}
	if err := a.items.MarkItemRevoked(ctx, tenantID, p.ItemID); err != nil {
		return nil, fmt.Errorf("mark item %s revoked: %w", p.ItemID, err)
	}
	return &webhook.Outcome{
		Action: "item_revoked",
		Detail: map[string]interface{}{"item_id": p.ItemID},
	}, nil
}
