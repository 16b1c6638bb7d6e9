// Package plaid adapts Plaid webhook deliveries to the reconciler.
//
// Plaid does not assign unique event IDs, so dedup keys on a derived ID
// built from the webhook type, code, and item. That makes repeat
// notifications for the same item collapse into one logical event;
// handlers that need every notification (transaction sync) must pull the
// current state from Plaid rather than trust the delivery count.
package plaid

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/centsible/fincore/pkg/webhook"
)

// ProviderName identifies Plaid events in the event log.
const ProviderName = "plaid"

// Webhook types Plaid sends.
const (
	TypeTransactions = "TRANSACTIONS"
	TypeItem         = "ITEM"
)

// Webhook codes within the types above.
const (
	CodeSyncUpdatesAvailable = "SYNC_UPDATES_AVAILABLE"
	CodeInitialUpdate        = "INITIAL_UPDATE"
	CodeHistoricalUpdate     = "HISTORICAL_UPDATE"
	CodeDefaultUpdate        = "DEFAULT_UPDATE"
	CodeError                = "ERROR"
	CodePendingExpiration    = "PENDING_EXPIRATION"
	CodeUserPermissionRevoked = "USER_PERMISSION_REVOKED"
)

// Payload is the common envelope of a Plaid webhook body. Individual
// codes carry extra fields; handlers re-parse the raw payload when they
// need them.
type Payload struct {
	WebhookType    string `json:"webhook_type"`
	WebhookCode    string `json:"webhook_code"`
	ItemID         string `json:"item_id"`
	Environment    string `json:"environment,omitempty"`
	NewTransactions int   `json:"new_transactions,omitempty"`
	Error          *struct {
		ErrorType    string `json:"error_type"`
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error,omitempty"`
}

// ParsePayload decodes the envelope and validates the fields dedup
// depends on.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrMalformedEvent, err)
	}
	if p.WebhookType == "" || p.WebhookCode == "" {
		return nil, fmt.Errorf("%w: missing webhook_type or webhook_code", webhook.ErrMalformedEvent)
	}
	return &p, nil
}

// EventType is the dispatch key handlers register under,
// e.g. "TRANSACTIONS.SYNC_UPDATES_AVAILABLE".
func (p *Payload) EventType() string {
	return p.WebhookType + "." + p.WebhookCode
}

// DerivedEventID builds the dedup key for a delivery. The timestamp is
// truncated to the minute so Plaid's immediate redeliveries dedup while
// later notifications for the same item still get through.
func DerivedEventID(p *Payload, received time.Time) string {
	parts := []string{
		strings.ToLower(p.WebhookType),
		strings.ToLower(p.WebhookCode),
		p.ItemID,
		received.UTC().Truncate(time.Minute).Format("200601021504"),
	}
	return strings.Join(parts, ":")
}

// NewEvent converts a parsed delivery into a reconciler event.
func NewEvent(p *Payload, body []byte, received time.Time) *webhook.Event {
	return &webhook.Event{
		Provider:        ProviderName,
		ProviderEventID: DerivedEventID(p, received),
		Type:            p.EventType(),
		Payload:         json.RawMessage(body),
		Created:         received.UTC(),
	}
}
