// Package memory implements the domain store interfaces with in-process
// maps. It is the default backend for the memory mode and for tests; every
// method is guarded by a single mutex per store, matching the one serialized
// transaction at a time execution model of the market core.
package memory

import (
	"context"
	"sync"

	"github.com/veilworks/blindbet/internal/domain"
)

// MarketStore implements domain.MarketStore in memory. Ids are dense and
// start at 1; markets are never removed.
type MarketStore struct {
	mu      sync.Mutex
	markets []domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{}
}

// Create assigns the next id and stores the market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uint64(len(s.markets)) + 1
	s.markets = append(s.markets, m)
	return m.ID, nil
}

// Get returns the market with the given id.
func (s *MarketStore) Get(ctx context.Context, id uint64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || id > uint64(len(s.markets)) {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return s.markets[id-1], nil
}

// SetResolved marks the market resolved with the given outcome.
func (s *MarketStore) SetResolved(ctx context.Context, id uint64, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || id > uint64(len(s.markets)) {
		return domain.ErrMarketNotFound
	}
	s.markets[id-1].Resolved = true
	s.markets[id-1].Outcome = outcome
	return nil
}

// List returns markets in id order with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := opts.Offset
	if start > len(s.markets) {
		start = len(s.markets)
	}
	end := len(s.markets)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	out := make([]domain.Market, end-start)
	copy(out, s.markets[start:end])
	return out, nil
}

// Count returns the number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}
