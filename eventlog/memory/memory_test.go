package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/fincore/pkg/webhook"
)

func record(id, eventID string, receivedAt time.Time) *webhook.Record {
	return &webhook.Record{
		ID:              id,
		Provider:        "stripe",
		ProviderEventID: eventID,
		EventType:       "invoice.payment_succeeded",
		TenantID:        "t1",
		Payload:         json.RawMessage(`{}`),
		ReceivedAt:      receivedAt,
	}
}

func TestGetReturnsNilForUnknownEvent(t *testing.T) {
	s := New()

	rec, err := s.Get(context.Background(), "stripe", "evt_missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("rec-1", "evt_1", time.Now())))

	rec, err := s.Get(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "rec-1", rec.ID)
	assert.False(t, rec.Processed)

	// Same event ID under a different provider is a different event.
	rec, err = s.Get(ctx, "plaid", "evt_1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("rec-1", "evt_1", time.Now())))
	assert.Error(t, s.Create(ctx, record("rec-2", "evt_1", time.Now())))
}

func TestMarkProcessed(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("rec-1", "evt_1", time.Now())))

	at := time.Now().UTC()
	outcome := json.RawMessage(`{"processed":true,"action":"payment_recorded"}`)
	require.NoError(t, s.MarkProcessed(ctx, "rec-1", outcome, at))

	rec, err := s.Get(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, rec.Processed)
	require.NotNil(t, rec.ProcessedAt)
	assert.Equal(t, at, *rec.ProcessedAt)
	assert.JSONEq(t, string(outcome), string(rec.Outcome))

	assert.Error(t, s.MarkProcessed(ctx, "rec-unknown", outcome, at))
}

func TestMarkFailedClearsOnLaterSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("rec-1", "evt_1", time.Now())))
	require.NoError(t, s.MarkFailed(ctx, "rec-1", "downstream unavailable"))

	rec, err := s.Get(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, rec.Processed)
	assert.Equal(t, "downstream unavailable", rec.ErrorMessage)

	require.NoError(t, s.MarkProcessed(ctx, "rec-1", json.RawMessage(`{}`), time.Now()))
	rec, err = s.Get(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, rec.Processed)
	assert.Empty(t, rec.ErrorMessage)
}

func TestListUnprocessed(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Create(ctx, record("rec-old", "evt_old", now.Add(-2*time.Hour))))
	require.NoError(t, s.Create(ctx, record("rec-older", "evt_older", now.Add(-3*time.Hour))))
	require.NoError(t, s.Create(ctx, record("rec-fresh", "evt_fresh", now)))
	require.NoError(t, s.Create(ctx, record("rec-done", "evt_done", now.Add(-4*time.Hour))))
	require.NoError(t, s.MarkProcessed(ctx, "rec-done", json.RawMessage(`{}`), now))

	records, err := s.ListUnprocessed(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Oldest first.
	assert.Equal(t, "rec-older", records[0].ID)
	assert.Equal(t, "rec-old", records[1].ID)

	// Limit applies after ordering.
	records, err = s.ListUnprocessed(ctx, now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec-older", records[0].ID)
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("rec-1", "evt_1", time.Now())))

	rec, err := s.Get(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	rec.Processed = true

	fresh, err := s.Get(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, fresh.Processed)
}
