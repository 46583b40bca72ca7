package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market records. Create assigns the next dense,
// strictly increasing id; markets are never deleted.
type MarketStore interface {
	Create(ctx context.Context, m Market) (uint64, error)
	Get(ctx context.Context, id uint64) (Market, error)
	SetResolved(ctx context.Context, id uint64, outcome Outcome) error
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bets and the per-market pool accumulators. CreateBet
// fails with ErrAlreadyBet when a bet for the (market, user) pair exists.
type BetStore interface {
	CreateBet(ctx context.Context, b Bet) error
	GetBet(ctx context.Context, marketID uint64, user common.Address) (Bet, error)
	MarkClaimed(ctx context.Context, marketID uint64, user common.Address) error
	InitPools(ctx context.Context, p Pools) error
	GetPools(ctx context.Context, marketID uint64) (Pools, error)
	UpdatePools(ctx context.Context, p Pools) error
}

// ClaimStore persists in-flight settlement records keyed by correlation id.
// Entries are removed on finalization or reopening; there is at most one per
// (market, user) at a time.
type ClaimStore interface {
	Put(ctx context.Context, c PendingClaim) error
	Get(ctx context.Context, requestID uuid.UUID) (PendingClaim, error)
	GetByBet(ctx context.Context, marketID uint64, user common.Address) (PendingClaim, error)
	Delete(ctx context.Context, requestID uuid.UUID) error
}

// EventStore persists the append-only public event log.
type EventStore interface {
	Append(ctx context.Context, e Event) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Event, error)
}
