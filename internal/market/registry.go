// Package market owns market records and their lifecycle: creation with
// validated timing parameters, single-shot resolution by the creator, and the
// active/resolvable query predicates.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

const (
	// MinDuration and MaxDuration bound how long a market accepts bets.
	MinDuration = time.Hour
	MaxDuration = 30 * 24 * time.Hour

	// MinDelay is the mandatory waiting period between betting close and the
	// earliest resolution.
	MinDelay = time.Hour
)

// Registry creates and resolves markets. All mutating calls are serialized
// behind a single mutex.
type Registry struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	svc      domain.ConfidentialService
	bus      domain.EventBus
	treasury common.Address
	logger   *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewRegistry creates a Registry. treasury is the service's own principal,
// which keeps decrypt and compute rights on every pool accumulator.
func NewRegistry(
	markets domain.MarketStore,
	bets domain.BetStore,
	svc domain.ConfidentialService,
	bus domain.EventBus,
	treasury common.Address,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		markets:  markets,
		bets:     bets,
		svc:      svc,
		bus:      bus,
		treasury: treasury,
		logger:   logger.With(slog.String("component", "market_registry")),
		now:      time.Now,
	}
}

// SetClock overrides the registry's time source. Tests only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// CreateMarket validates the timing parameters, allocates the next market id,
// initializes both pool accumulators to an encrypted zero, and emits the
// creation event. Returns the new id.
func (r *Registry) CreateMarket(ctx context.Context, creator common.Address, question string, duration, delay time.Duration) (uint64, error) {
	if duration < MinDuration || duration > MaxDuration {
		return 0, domain.ErrInvalidDuration
	}
	if delay < MinDelay {
		return 0, domain.ErrInvalidDelay
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	m := domain.Market{
		Question:       question,
		Creator:        creator,
		EndTime:        now.Add(duration),
		ResolutionTime: now.Add(duration).Add(delay),
		Resolved:       false,
		Outcome:        domain.OutcomeUnresolved,
		CreatedAt:      now,
	}

	id, err := r.markets.Create(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("market: create: %w", err)
	}

	yesPool, err := r.svc.Encrypt(ctx, big.NewInt(0), r.treasury)
	if err != nil {
		return 0, fmt.Errorf("market: init yes pool: %w", err)
	}
	noPool, err := r.svc.Encrypt(ctx, big.NewInt(0), r.treasury)
	if err != nil {
		return 0, fmt.Errorf("market: init no pool: %w", err)
	}
	if err := r.bets.InitPools(ctx, domain.Pools{
		MarketID: id,
		YesPool:  yesPool,
		NoPool:   noPool,
	}); err != nil {
		return 0, fmt.Errorf("market: init pools: %w", err)
	}

	if err := r.bus.Publish(ctx, domain.Event{
		Kind:     domain.EventMarketCreated,
		MarketID: id,
		Actor:    creator,
		Detail: map[string]any{
			"question":        question,
			"end_time":        m.EndTime,
			"resolution_time": m.ResolutionTime,
		},
		At: now,
	}); err != nil {
		return 0, fmt.Errorf("market: publish created: %w", err)
	}

	r.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", id),
		slog.Time("end_time", m.EndTime),
		slog.Time("resolution_time", m.ResolutionTime),
	)
	return id, nil
}

// ResolveMarket sets the outcome. Only the creator may resolve, only at or
// after the resolution time, only once, and only with a definite outcome.
func (r *Registry) ResolveMarket(ctx context.Context, caller common.Address, id uint64, outcome domain.Outcome) error {
	if outcome != domain.OutcomeNo && outcome != domain.OutcomeYes {
		return domain.ErrInvalidOutcome
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.markets.Get(ctx, id)
	if err != nil {
		return err
	}
	if caller != m.Creator {
		return domain.ErrNotCreator
	}
	if m.Resolved {
		return domain.ErrAlreadyResolved
	}
	now := r.now()
	if now.Before(m.ResolutionTime) {
		return domain.ErrTooEarly
	}

	if err := r.markets.SetResolved(ctx, id, outcome); err != nil {
		return fmt.Errorf("market: resolve: %w", err)
	}

	if err := r.bus.Publish(ctx, domain.Event{
		Kind:     domain.EventMarketResolved,
		MarketID: id,
		Actor:    caller,
		Detail:   map[string]any{"outcome": outcome.String()},
		At:       now,
	}); err != nil {
		return fmt.Errorf("market: publish resolved: %w", err)
	}

	r.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", id),
		slog.String("outcome", outcome.String()),
	)
	return nil
}

// Get returns a market by id.
func (r *Registry) Get(ctx context.Context, id uint64) (domain.Market, error) {
	return r.markets.Get(ctx, id)
}

// List returns markets in id order.
func (r *Registry) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return r.markets.List(ctx, opts)
}

// Count returns the total number of markets.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	return r.markets.Count(ctx)
}

// Active reports whether the market currently accepts bets.
func (r *Registry) Active(ctx context.Context, id uint64) (bool, error) {
	m, err := r.markets.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return m.Active(r.now()), nil
}

// Resolvable reports whether the creator may resolve the market now.
func (r *Registry) Resolvable(ctx context.Context, id uint64) (bool, error) {
	m, err := r.markets.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return m.Resolvable(r.now()), nil
}
