package plaid

import "context"

// TransactionSyncer pulls fresh transactions for an item when Plaid
// signals updates. Implementations call Plaid's transactions/sync
// endpoint with the item's stored cursor; the webhook only says
// "something changed", never what.
type TransactionSyncer interface {
	// SyncTransactions fetches and stores new transactions for the item.
	// Returns the number of transactions applied. Must be idempotent:
	// re-syncing with the same cursor applies nothing new.
	SyncTransactions(ctx context.Context, tenantID, itemID string) (int, error)
}

// ItemUpdater applies item lifecycle changes (errors, pending
// expiration, revocation) to the tenant's stored item.
type ItemUpdater interface {
	// MarkItemError flags the item as needing user re-authentication.
	MarkItemError(ctx context.Context, tenantID, itemID, errorCode string) error

	// MarkItemRevoked disables the item after the user revoked access.
	MarkItemRevoked(ctx context.Context, tenantID, itemID string) error
}
