package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventlog "github.com/centsible/fincore/eventlog/memory"
	"github.com/centsible/fincore/pkg/webhook"
)

func seedUnprocessed(t *testing.T, store webhook.Store, id string, age time.Duration) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &webhook.Record{
		ID:              "rec-" + id,
		Provider:        "stripe",
		ProviderEventID: id,
		EventType:       "invoice.payment_succeeded",
		TenantID:        "t1",
		Payload:         json.RawMessage(`{"id":"in_1"}`),
		ReceivedAt:      time.Now().UTC().Add(-age),
	}))
}

func TestSweepRedrivesStaleRecords(t *testing.T) {
	store := eventlog.New()
	r, err := webhook.New(webhook.Config{Store: store})
	require.NoError(t, err)

	var handled atomic.Int64
	r.Register("invoice.payment_succeeded", func(_ context.Context, _ *webhook.Event, _ string) (*webhook.Outcome, error) {
		handled.Add(1)
		return &webhook.Outcome{Action: "payment_recorded"}, nil
	})

	seedUnprocessed(t, store, "evt_old_1", time.Hour)
	seedUnprocessed(t, store, "evt_old_2", time.Hour)
	// Fresh record: still inside the provider's own retry cycle.
	seedUnprocessed(t, store, "evt_fresh", time.Minute)

	sweeper, err := webhook.NewSweeper(webhook.SweeperConfig{
		Store:      store,
		Reconciler: r,
		Grace:      15 * time.Minute,
	})
	require.NoError(t, err)

	redriven, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, redriven)
	assert.Equal(t, int64(2), handled.Load())

	rec, err := store.Get(context.Background(), "stripe", "evt_old_1")
	require.NoError(t, err)
	assert.True(t, rec.Processed)

	rec, err = store.Get(context.Background(), "stripe", "evt_fresh")
	require.NoError(t, err)
	assert.False(t, rec.Processed)
}

func TestSweepCountsFailuresWithoutAborting(t *testing.T) {
	store := eventlog.New()
	r, err := webhook.New(webhook.Config{Store: store})
	require.NoError(t, err)

	r.Register("invoice.payment_succeeded", func(_ context.Context, event *webhook.Event, _ string) (*webhook.Outcome, error) {
		if event.ProviderEventID == "evt_bad" {
			return nil, errors.New("still failing")
		}
		return &webhook.Outcome{Action: "payment_recorded"}, nil
	})

	seedUnprocessed(t, store, "evt_bad", time.Hour)
	seedUnprocessed(t, store, "evt_good", time.Hour)

	sweeper, err := webhook.NewSweeper(webhook.SweeperConfig{Store: store, Reconciler: r})
	require.NoError(t, err)

	redriven, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, redriven)

	// The failing record stays unprocessed for the next sweep.
	rec, err := store.Get(context.Background(), "stripe", "evt_bad")
	require.NoError(t, err)
	assert.False(t, rec.Processed)
}

func TestSweepBatchLimit(t *testing.T) {
	store := eventlog.New()
	r, err := webhook.New(webhook.Config{Store: store})
	require.NoError(t, err)
	r.Register("invoice.payment_succeeded", func(_ context.Context, _ *webhook.Event, _ string) (*webhook.Outcome, error) {
		return &webhook.Outcome{Action: "ok"}, nil
	})

	for i := 0; i < 5; i++ {
		seedUnprocessed(t, store, "evt_"+string(rune('a'+i)), time.Hour)
	}

	sweeper, err := webhook.NewSweeper(webhook.SweeperConfig{
		Store:      store,
		Reconciler: r,
		Batch:      2,
	})
	require.NoError(t, err)

	redriven, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, redriven)

	redriven, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, redriven)
}

func TestSweepEmptyLog(t *testing.T) {
	store := eventlog.New()
	r, err := webhook.New(webhook.Config{Store: store})
	require.NoError(t, err)

	sweeper, err := webhook.NewSweeper(webhook.SweeperConfig{Store: store, Reconciler: r})
	require.NoError(t, err)

	redriven, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, redriven)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := eventlog.New()
	r, err := webhook.New(webhook.Config{Store: store})
	require.NoError(t, err)

	sweeper, err := webhook.NewSweeper(webhook.SweeperConfig{Store: store, Reconciler: r})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}
}
