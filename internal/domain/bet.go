package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Bet is a single user's confidential position in a market. The amount is an
// opaque handle whose plaintext only the bettor and the service can request.
// One bet per (market, user); Claimed flips true exactly once and is never
// reset.
type Bet struct {
	MarketID   uint64
	User       common.Address
	Amount     Handle
	Prediction Prediction
	Claimed    bool
	PlacedAt   time.Time
}

// Pools holds a market's per-side encrypted stake accumulators and the
// plaintext participation counters kept in lockstep with them. The encrypted
// sums are only ever inspectable through a verified decryption.
type Pools struct {
	MarketID uint64
	YesPool  Handle
	NoPool   Handle
	YesCount int64
	NoCount  int64
}

// Side returns the accumulator handle and participant count for a side.
func (p Pools) Side(o Outcome) (Handle, int64) {
	if o == OutcomeYes {
		return p.YesPool, p.YesCount
	}
	return p.NoPool, p.NoCount
}

// PendingClaim is an in-flight two-phase settlement, keyed by the decrypt
// request correlation id. Created when a claim is submitted, deleted when the
// callback finalizes it or when the bettor reopens it after expiry. The
// referenced bet always has Claimed = true.
type PendingClaim struct {
	RequestID   uuid.UUID
	MarketID    uint64
	User        common.Address
	RequestedAt time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the decrypt callback window has lapsed, making the
// claim eligible for reopening.
func (c PendingClaim) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
