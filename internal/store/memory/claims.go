package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilworks/blindbet/internal/domain"
)

// ClaimStore implements domain.ClaimStore in memory.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[uuid.UUID]domain.PendingClaim
}

// NewClaimStore creates an empty ClaimStore.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{claims: make(map[uuid.UUID]domain.PendingClaim)}
}

// Put stores a pending claim under its correlation id.
func (s *ClaimStore) Put(ctx context.Context, c domain.PendingClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[c.RequestID] = c
	return nil
}

// Get returns the pending claim for a correlation id.
func (s *ClaimStore) Get(ctx context.Context, requestID uuid.UUID) (domain.PendingClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[requestID]
	if !ok {
		return domain.PendingClaim{}, domain.ErrClaimNotFound
	}
	return c, nil
}

// GetByBet returns the pending claim for a (market, user) pair.
func (s *ClaimStore) GetByBet(ctx context.Context, marketID uint64, user common.Address) (domain.PendingClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.MarketID == marketID && c.User == user {
			return c, nil
		}
	}
	return domain.PendingClaim{}, domain.ErrClaimNotFound
}

// Delete removes a pending claim. Deleting an absent id is an error so
// callers can detect replayed callbacks.
func (s *ClaimStore) Delete(ctx context.Context, requestID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[requestID]; !ok {
		return domain.ErrClaimNotFound
	}
	delete(s.claims, requestID)
	return nil
}
