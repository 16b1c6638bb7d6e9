package plaid

import (
	"context"
	"fmt"

	"github.com/centsible/fincore/pkg/webhook"
)

// ItemResolver maps a Plaid item ID to the tenant that linked it. Plaid
// payloads carry no tenant information of their own; the item-to-tenant
// mapping is established at link time and stored application-side.
type ItemResolver interface {
	TenantForItem(ctx context.Context, itemID string) (string, error)
}

// ItemResolverFunc adapts a function to the ItemResolver interface.
type ItemResolverFunc func(ctx context.Context, itemID string) (string, error)

func (f ItemResolverFunc) TenantForItem(ctx context.Context, itemID string) (string, error) {
	return f(ctx, itemID)
}

// TenantResolver implements webhook.TenantResolver for Plaid events by
// looking up the payload's item ID.
type TenantResolver struct {
	Items ItemResolver
}

func (r *TenantResolver) ResolveTenant(ctx context.Context, event *webhook.Event) (string, error) {
	p, err := ParsePayload(event.Payload)
	if err != nil {
		return "", err
	}
	if p.ItemID == "" {
		return "", nil
	}
	if r.Items == nil {
		return "", nil
	}
	tenantID, err := r.Items.TenantForItem(ctx, p.ItemID)
	if err != nil {
		return "", fmt.Errorf("resolving tenant for item %s: %w", p.ItemID, err)
	}
	return tenantID, nil
}
