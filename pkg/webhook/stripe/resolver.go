package stripe

import (
	"context"
	"encoding/json"

	"github.com/centsible/fincore/pkg/webhook"
)

// MetadataTenantKey is the Stripe metadata key carrying the tenant ID.
// Checkout wiring stamps it onto subscriptions at creation time.
const MetadataTenantKey = "tenant_id"

// TenantResolver resolves the tenant from Stripe object metadata, with
// an optional fallback lookup (e.g. customer ID -> tenant in the
// application database) for objects created before metadata stamping.
type TenantResolver struct {
	// Fallback is consulted when the payload carries no tenant metadata.
	// May be nil.
	Fallback func(ctx context.Context, customerID string) (string, error)
}

func (r *TenantResolver) ResolveTenant(ctx context.Context, event *webhook.Event) (string, error) {
	var raw struct {
		Metadata map[string]string `json:"metadata"`
		Customer interface{}       `json:"customer"`
	}
	if err := json.Unmarshal(event.Payload, &raw); err != nil {
		return "", err
	}

	if tenantID := raw.Metadata[MetadataTenantKey]; tenantID != "" {
		return tenantID, nil
	}

	if r.Fallback == nil {
		return "", nil
	}

	customerID := ""
	switch v := raw.Customer.(type) {
	case string:
		customerID = v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			customerID = id
		}
	}
	if customerID == "" {
		return "", nil
	}
	return r.Fallback(ctx, customerID)
}
