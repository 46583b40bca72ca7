package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names an observable event. One event is emitted per successful
// state-mutating call, in call order.
type EventKind string

const (
	EventMarketCreated  EventKind = "market_created"
	EventBetPlaced      EventKind = "bet_placed"
	EventMarketResolved EventKind = "market_resolved"
	EventClaimRequested EventKind = "claim_requested"
	EventClaimFinalized EventKind = "claim_finalized"
	EventClaimReopened  EventKind = "claim_reopened"

	// Declared in the event vocabulary but produced by no state transition.
	EventMarketCancelled EventKind = "market_cancelled"
	EventDeposit         EventKind = "deposit"
	EventWithdraw        EventKind = "withdraw"
)

// Event is a single public record. Detail never contains a stake amount; the
// only plaintext values that ever appear are a finalized claim's reward and
// its two decrypted intermediates.
type Event struct {
	Kind     EventKind
	MarketID uint64
	Actor    common.Address
	Detail   map[string]any
	At       time.Time
}

// EventBus publishes events to whatever sinks the application wired up.
type EventBus interface {
	Publish(ctx context.Context, e Event) error
}

// EventFeed exposes a live subscription to published events. The returned
// channel closes when the context is cancelled.
type EventFeed interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}
