// Package bus provides in-process event bus implementations: a subscribable
// memory bus, a fan-out combinator, and a sink that appends to an event
// store. The Redis-backed bus lives in the redis subpackage.
package bus

import (
	"context"
	"sync"

	"github.com/veilworks/blindbet/internal/domain"
)

// Memory is an in-process EventBus and EventFeed. Publish delivers to every
// live subscriber without blocking; slow subscribers drop events.
type Memory struct {
	mu   sync.Mutex
	subs map[chan domain.Event]struct{}
}

// NewMemory creates an empty Memory bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan domain.Event]struct{})}
}

// Publish delivers e to all current subscribers.
func (m *Memory) Publish(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving future events. The channel closes
// when ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, 128)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Fanout publishes every event to each wrapped bus in order, stopping at the
// first error.
type Fanout []domain.EventBus

// Publish implements domain.EventBus.
func (f Fanout) Publish(ctx context.Context, e domain.Event) error {
	for _, b := range f {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// StoreSink adapts a domain.EventStore into an EventBus so the append-only
// log participates in the fan-out.
type StoreSink struct {
	Store domain.EventStore
}

// Publish implements domain.EventBus.
func (s StoreSink) Publish(ctx context.Context, e domain.Event) error {
	return s.Store.Append(ctx, e)
}
