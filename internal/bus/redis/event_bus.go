package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/veilworks/blindbet/internal/domain"
)

const (
	// eventChannel is the pub/sub channel live subscribers listen on.
	eventChannel = "ch:events"
	// eventStream is the durable ordered event stream.
	eventStream = "stream:events"
	// streamMaxLen is the approximate maximum stream length, enforced via
	// XADD MAXLEN ~.
	streamMaxLen int64 = 100000
)

// EventBus implements domain.EventBus and domain.EventFeed over Redis.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// wireEvent is the JSON encoding of a domain.Event on the bus.
type wireEvent struct {
	Kind     string         `json:"kind"`
	MarketID uint64         `json:"market_id"`
	Actor    common.Address `json:"actor"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}

// Publish appends the event to the durable stream and fans it out to live
// pub/sub subscribers.
func (b *EventBus) Publish(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(wireEvent{
		Kind:     string(e.Kind),
		MarketID: e.MarketID,
		Actor:    e.Actor,
		Detail:   e.Detail,
		At:       e.At,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err(); err != nil {
		return fmt.Errorf("redis: stream append: %w", err)
	}

	if err := b.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events published after subscription. The
// channel closes when the context is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)

	// Verify the subscription is established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var we wireEvent
				if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
					continue
				}
				e := domain.Event{
					Kind:     domain.EventKind(we.Kind),
					MarketID: we.MarketID,
					Actor:    we.Actor,
					Detail:   we.Detail,
					At:       we.At,
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
