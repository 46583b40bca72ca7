// Package bet accepts confidential stakes against open markets. Funds are
// pulled through the token ledger's allowance-gated transfer, so the handle
// the ledger returns, not the one the caller submitted, is what gets stored
// and accumulated.
package bet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

// Service places bets and maintains the per-market pool accumulators.
// Mutating calls are serialized behind a single mutex.
type Service struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	ledger   domain.TokenLedger
	svc      domain.ConfidentialService
	bus      domain.EventBus
	treasury common.Address
	logger   *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewService creates a bet Service. treasury is the custody account bets are
// pulled into.
func NewService(
	markets domain.MarketStore,
	bets domain.BetStore,
	ledger domain.TokenLedger,
	svc domain.ConfidentialService,
	bus domain.EventBus,
	treasury common.Address,
	logger *slog.Logger,
) *Service {
	return &Service{
		markets:  markets,
		bets:     bets,
		ledger:   ledger,
		svc:      svc,
		bus:      bus,
		treasury: treasury,
		logger:   logger.With(slog.String("component", "bet_service")),
		now:      time.Now,
	}
}

// SetClock overrides the service's time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// PlaceBet stakes the encrypted amount on one side of an open market. All
// preconditions are checked before any state changes; a failure aborts the
// whole call.
func (s *Service) PlaceBet(ctx context.Context, caller common.Address, marketID uint64, prediction domain.Prediction, amount domain.Handle, proof []byte) error {
	if !prediction.Valid() {
		return domain.ErrInvalidPrediction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return err
	}
	now := s.now()
	if m.Resolved || !now.Before(m.EndTime) {
		return domain.ErrBettingClosed
	}
	if _, err := s.bets.GetBet(ctx, marketID, caller); err == nil {
		return domain.ErrAlreadyBet
	} else if !errors.Is(err, domain.ErrBetNotFound) {
		return fmt.Errorf("bet: check existing: %w", err)
	}

	// The ledger caps the transfer at the payer's balance, so the returned
	// handle is the real stake even if the submitted one exaggerated it.
	transferred, err := s.ledger.TransferFrom(ctx, caller, s.treasury, amount, proof)
	if err != nil {
		return fmt.Errorf("bet: pull stake: %w", err)
	}
	if err := s.svc.Grant(ctx, transferred, s.treasury); err != nil {
		return fmt.Errorf("bet: grant treasury: %w", err)
	}
	if err := s.svc.Grant(ctx, transferred, caller); err != nil {
		return fmt.Errorf("bet: grant bettor: %w", err)
	}

	if err := s.bets.CreateBet(ctx, domain.Bet{
		MarketID:   marketID,
		User:       caller,
		Amount:     transferred,
		Prediction: prediction,
		PlacedAt:   now,
	}); err != nil {
		return err
	}

	pools, err := s.bets.GetPools(ctx, marketID)
	if err != nil {
		return fmt.Errorf("bet: load pools: %w", err)
	}
	if prediction == domain.PredictionYes {
		pools.YesPool, err = s.svc.Add(ctx, pools.YesPool, transferred)
		pools.YesCount++
	} else {
		pools.NoPool, err = s.svc.Add(ctx, pools.NoPool, transferred)
		pools.NoCount++
	}
	if err != nil {
		return fmt.Errorf("bet: accumulate pool: %w", err)
	}
	side, _ := pools.Side(outcomeOf(prediction))
	if err := s.svc.Grant(ctx, side, s.treasury); err != nil {
		return fmt.Errorf("bet: grant pool: %w", err)
	}
	if err := s.bets.UpdatePools(ctx, pools); err != nil {
		return fmt.Errorf("bet: update pools: %w", err)
	}

	// The amount never appears in the public record.
	if err := s.bus.Publish(ctx, domain.Event{
		Kind:     domain.EventBetPlaced,
		MarketID: marketID,
		Actor:    caller,
		Detail:   map[string]any{"prediction": prediction.String()},
		At:       now,
	}); err != nil {
		return fmt.Errorf("bet: publish placed: %w", err)
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.Uint64("market_id", marketID),
		slog.String("prediction", prediction.String()),
	)
	return nil
}

// Bet returns the caller's own bet, including the encrypted amount handle
// only they (and the service) can request decryption of.
func (s *Service) Bet(ctx context.Context, caller common.Address, marketID uint64) (domain.Bet, error) {
	return s.bets.GetBet(ctx, marketID, caller)
}

// Pools returns a market's encrypted pool totals and plaintext counters.
func (s *Service) Pools(ctx context.Context, marketID uint64) (domain.Pools, error) {
	return s.bets.GetPools(ctx, marketID)
}

// outcomeOf maps a prediction onto the outcome side it pays on.
func outcomeOf(p domain.Prediction) domain.Outcome {
	if p == domain.PredictionYes {
		return domain.OutcomeYes
	}
	return domain.OutcomeNo
}
