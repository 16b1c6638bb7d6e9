package webhook

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/centsible/fincore/logging"
)

const (
	// DefaultSweepGrace is how old an unprocessed record must be before
	// the sweeper re-drives it, leaving room for the provider's own
	// retry cycle to finish first.
	DefaultSweepGrace = 15 * time.Minute

	// DefaultSweepBatch bounds how many records one sweep picks up.
	DefaultSweepBatch = 100

	// DefaultSweepConcurrency bounds concurrent re-dispatches.
	DefaultSweepConcurrency = 4
)

// SweeperConfig holds sweeper configuration.
type SweeperConfig struct {
	// Store is the event log to scan (required).
	Store Store

	// Reconciler re-processes the stale records (required).
	Reconciler *Reconciler

	// Grace, Batch and Concurrency override the package defaults.
	Grace       time.Duration
	Batch       int
	Concurrency int

	// Logger is used for structured logging (default: NoopLogger).
	Logger logging.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Sweeper re-drives unprocessed event records whose original delivery
// failed or crashed mid-handler. Re-driving goes through the reconciler,
// so a record another worker processed in the meantime dedups to a no-op.
type Sweeper struct {
	store       Store
	reconciler  *Reconciler
	grace       time.Duration
	batch       int
	concurrency int
	logger      logging.Logger
	now         func() time.Time
}

// NewSweeper creates a new sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil || cfg.Reconciler == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultSweepGrace
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultSweepBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSweepConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Sweeper{
		store:       cfg.Store,
		reconciler:  cfg.Reconciler,
		grace:       cfg.Grace,
		batch:       cfg.Batch,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}, nil
}

// Sweep re-processes one batch of stale unprocessed records and reports
// how many succeeded. Individual handler failures are logged and counted,
// not fatal; the record stays unprocessed for the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	records, err := s.store.ListUnprocessed(ctx, cutoff, s.batch)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	var redriven, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			event := &Event{
				Provider:        rec.Provider,
				ProviderEventID: rec.ProviderEventID,
				Type:            rec.EventType,
				TenantID:        rec.TenantID,
				Payload:         rec.Payload,
				Created:         rec.ReceivedAt,
			}
			if _, err := s.reconciler.Process(gctx, event); err != nil {
				failed.Add(1)
				s.logger.Warn("sweep redelivery failed",
					logging.F("provider", rec.Provider),
					logging.F("event_id", rec.ProviderEventID),
					logging.F("error", err.Error()),
				)
				return nil
			}
			redriven.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(redriven.Load()), err
	}

	s.reconciler.metrics.RecordSweep(int(redriven.Load()), int(failed.Load()))
	s.logger.Info("webhook sweep complete",
		logging.F("redriven", redriven.Load()),
		logging.F("failed", failed.Load()),
	)
	return int(redriven.Load()), nil
}

// Run sweeps on the given interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("webhook sweep failed", logging.F("error", err.Error()))
			}
		}
	}
}
