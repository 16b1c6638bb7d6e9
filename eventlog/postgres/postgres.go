// Package postgres provides a PostgreSQL implementation of webhook.Store.
// The event log is append-mostly: records are created before dispatch,
// flipped to processed afterwards, and never deleted here. Retention and
// cleanup are an operational concern outside this subsystem.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/centsible/fincore/pkg/webhook"
)

// Schema is the table this store expects. Run it via the application's
// migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS webhook_events (
	id                UUID PRIMARY KEY,
	provider          TEXT NOT NULL,
	provider_event_id TEXT NOT NULL,
	event_type        TEXT NOT NULL,
	tenant_id         TEXT,
	payload           JSONB,
	processed         BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at      TIMESTAMPTZ,
	error_message     TEXT,
	outcome           JSONB,
	received_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (provider, provider_event_id)
);
CREATE INDEX IF NOT EXISTS webhook_events_unprocessed_idx
	ON webhook_events (received_at) WHERE NOT processed;
`

// Config holds PostgreSQL event log configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string (required).
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Store implements webhook.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL event log.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool owned by the caller.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Get(ctx context.Context, provider, providerEventID string) (*webhook.Record, error) {
	var rec webhook.Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, provider, provider_event_id, event_type,
				COALESCE(tenant_id, ''), payload, processed, processed_at,
				COALESCE(error_message, ''), outcome, received_at
			FROM webhook_events
			WHERE provider = $1 AND provider_event_id = $2`,
		provider, providerEventID,
	).Scan(
		&rec.ID, &rec.Provider, &rec.ProviderEventID, &rec.EventType,
		&rec.TenantID, &rec.Payload, &rec.Processed, &rec.ProcessedAt,
		&rec.ErrorMessage, &rec.Outcome, &rec.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &rec, nil
}

func (s *Store) Create(ctx context.Context, rec *webhook.Record) error {
	if rec == nil || rec.ID == "" || rec.ProviderEventID == "" {
		return fmt.Errorf("invalid webhook event record")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events
			(id, provider, provider_event_id, event_type, tenant_id,
			 payload, processed, received_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, FALSE, $7)`,
		rec.ID, rec.Provider, rec.ProviderEventID, rec.EventType,
		rec.TenantID, rec.Payload, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

func (s *Store) MarkProcessed(ctx context.Context, id string, outcome json.RawMessage, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events
			SET processed = TRUE, processed_at = $2, outcome = $3, error_message = NULL
			WHERE id = $1`,
		id, at, outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event %s not found", id)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events
			SET processed = FALSE, error_message = $2
			WHERE id = $1`,
		id, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event %s not found", id)
	}
	return nil
}

func (s *Store) ListUnprocessed(ctx context.Context, cutoff time.Time, limit int) ([]*webhook.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, provider, provider_event_id, event_type,
				COALESCE(tenant_id, ''), payload, processed, processed_at,
				COALESCE(error_message, ''), outcome, received_at
			FROM webhook_events
			WHERE NOT processed AND received_at < $1
			ORDER BY received_at ASC
			LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed webhook events: %w", err)
	}
	defer rows.Close()

	var records []*webhook.Record
	for rows.Next() {
		var rec webhook.Record
		if err := rows.Scan(
			&rec.ID, &rec.Provider, &rec.ProviderEventID, &rec.EventType,
			&rec.TenantID, &rec.Payload, &rec.Processed, &rec.ProcessedAt,
			&rec.ErrorMessage, &rec.Outcome, &rec.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webhook events: %w", err)
	}
	return records, nil
}
