package memory

import (
	"context"
	"sync"

	"github.com/veilworks/blindbet/internal/domain"
)

// EventStore implements domain.EventStore as an append-only in-memory log.
type EventStore struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append records an event at the end of the log.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// ListByMarket returns a market's events in append order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	skipped := 0
	for _, e := range s.events {
		if e.MarketID != marketID {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// All returns the full log in append order.
func (s *EventStore) All() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}
