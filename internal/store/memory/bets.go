package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

type betKey struct {
	marketID uint64
	user     common.Address
}

// BetStore implements domain.BetStore in memory.
type BetStore struct {
	mu    sync.Mutex
	bets  map[betKey]domain.Bet
	pools map[uint64]domain.Pools
}

// NewBetStore creates an empty BetStore.
func NewBetStore() *BetStore {
	return &BetStore{
		bets:  make(map[betKey]domain.Bet),
		pools: make(map[uint64]domain.Pools),
	}
}

// CreateBet stores a new bet, failing if one already exists for the pair.
func (s *BetStore) CreateBet(ctx context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := betKey{marketID: b.MarketID, user: b.User}
	if _, ok := s.bets[k]; ok {
		return domain.ErrAlreadyBet
	}
	s.bets[k] = b
	return nil
}

// GetBet returns the bet for (marketID, user).
func (s *BetStore) GetBet(ctx context.Context, marketID uint64, user common.Address) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betKey{marketID: marketID, user: user}]
	if !ok {
		return domain.Bet{}, domain.ErrBetNotFound
	}
	return b, nil
}

// MarkClaimed flips the bet's claimed flag. The flag is monotone; marking an
// already-claimed bet is an error surfaced as ErrAlreadyClaimed.
func (s *BetStore) MarkClaimed(ctx context.Context, marketID uint64, user common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := betKey{marketID: marketID, user: user}
	b, ok := s.bets[k]
	if !ok {
		return domain.ErrBetNotFound
	}
	if b.Claimed {
		return domain.ErrAlreadyClaimed
	}
	b.Claimed = true
	s.bets[k] = b
	return nil
}

// InitPools stores the initial accumulators for a market.
func (s *BetStore) InitPools(ctx context.Context, p domain.Pools) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.MarketID] = p
	return nil
}

// GetPools returns a market's accumulators and counters.
func (s *BetStore) GetPools(ctx context.Context, marketID uint64) (domain.Pools, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[marketID]
	if !ok {
		return domain.Pools{}, domain.ErrMarketNotFound
	}
	return p, nil
}

// UpdatePools replaces a market's accumulators and counters.
func (s *BetStore) UpdatePools(ctx context.Context, p domain.Pools) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[p.MarketID]; !ok {
		return domain.ErrMarketNotFound
	}
	s.pools[p.MarketID] = p
	return nil
}
