// Package memory provides an in-memory implementation of webhook.Store.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/centsible/fincore/pkg/webhook"
)

// Store implements webhook.Store using in-memory maps.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*webhook.Record
	byEvent map[string]string // provider|providerEventID -> record ID
}

// New creates a new in-memory event log.
func New() *Store {
	return &Store{
		byID:    make(map[string]*webhook.Record),
		byEvent: make(map[string]string),
	}
}

func eventKey(provider, providerEventID string) string {
	return provider + "|" + providerEventID
}

func (s *Store) Get(_ context.Context, provider, providerEventID string) (*webhook.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEvent[eventKey(provider, providerEventID)]
	if !ok {
		return nil, nil
	}
	rec := *s.byID[id]
	return &rec, nil
}

func (s *Store) Create(_ context.Context, rec *webhook.Record) error {
	if rec == nil || rec.ID == "" || rec.ProviderEventID == "" {
		return fmt.Errorf("eventlog: invalid record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey(rec.Provider, rec.ProviderEventID)
	if _, exists := s.byEvent[key]; exists {
		return fmt.Errorf("eventlog: duplicate provider event id %s", rec.ProviderEventID)
	}

	cp := *rec
	s.byID[rec.ID] = &cp
	s.byEvent[key] = rec.ID
	return nil
}

func (s *Store) MarkProcessed(_ context.Context, id string, outcome json.RawMessage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("eventlog: record %s not found", id)
	}
	rec.Processed = true
	rec.ProcessedAt = &at
	rec.ErrorMessage = ""
	rec.Outcome = append(json.RawMessage(nil), outcome...)
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("eventlog: record %s not found", id)
	}
	rec.Processed = false
	rec.ErrorMessage = errorMessage
	return nil
}

func (s *Store) ListUnprocessed(_ context.Context, cutoff time.Time, limit int) ([]*webhook.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*webhook.Record
	for _, rec := range s.byID {
		if !rec.Processed && rec.ReceivedAt.Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
