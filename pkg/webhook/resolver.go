package webhook

import "context"

// ResolverMux dispatches tenant resolution by event provider, so one
// reconciler can host handlers for several providers while each keeps
// its own resolution strategy. Events from providers with no entry
// resolve to the empty tenant.
type ResolverMux map[string]TenantResolver

func (m ResolverMux) ResolveTenant(ctx context.Context, event *Event) (string, error) {
	r, ok := m[event.Provider]
	if !ok || r == nil {
		return "", nil
	}
	return r.ResolveTenant(ctx, event)
}
