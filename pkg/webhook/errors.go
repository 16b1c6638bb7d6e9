package webhook

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned by New when no event store is provided.
	ErrStoreRequired = errors.New("webhook: event store is required")

	// ErrMalformedEvent is returned for events missing a type. The
	// endpoint maps it to a 4xx so the provider does not retry.
	ErrMalformedEvent = errors.New("webhook: malformed event")
)

// HandlerError wraps a failure from a registered handler. The event
// record stays unprocessed with the error message persisted, so the
// provider's retry/backoff mechanism can redeliver safely.
type HandlerError struct {
	Provider        string
	EventType       string
	ProviderEventID string
	Err             error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("webhook: handler for %s event %s (%s) failed: %v",
		e.Provider, e.EventType, e.ProviderEventID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
