// Package settlement drives the claim state machine: NoClaim ->
// ClaimRequested via ClaimReward, ClaimRequested -> Finalized via the
// proof-verified decrypt callback. A pending claim that outlives its expiry
// can be reopened for a fresh decrypt request.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilworks/blindbet/internal/domain"
)

// Scale is the fixed-point factor for the payout division. The reward is
// floor(floor(numerator*Scale/denominator)/Scale); the truncation loss is
// bounded by the scale factor.
const Scale = 100000

// DefaultClaimTTL is how long a decrypt request may stay unanswered before
// the bettor can reopen the claim.
const DefaultClaimTTL = 24 * time.Hour

// Engine computes rewards, submits decrypt requests, and finalizes claims
// when the callback lands. Mutating calls are serialized behind a single
// mutex; FinalizeReward may arrive arbitrarily late or never.
type Engine struct {
	markets    domain.MarketStore
	bets       domain.BetStore
	claims     domain.ClaimStore
	svc        domain.ConfidentialService
	ledger     domain.TokenLedger
	bus        domain.EventBus
	treasury   common.Address
	ledgerAddr common.Address
	claimTTL   time.Duration
	logger     *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewEngine creates a settlement Engine. treasury is the market custody
// account payouts are drawn from; ledgerAddr is the token ledger's principal,
// which needs decrypt rights on every payout handle it moves.
func NewEngine(
	markets domain.MarketStore,
	bets domain.BetStore,
	claims domain.ClaimStore,
	svc domain.ConfidentialService,
	ledger domain.TokenLedger,
	bus domain.EventBus,
	treasury, ledgerAddr common.Address,
	claimTTL time.Duration,
	logger *slog.Logger,
) *Engine {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Engine{
		markets:    markets,
		bets:       bets,
		claims:     claims,
		svc:        svc,
		ledger:     ledger,
		bus:        bus,
		treasury:   treasury,
		ledgerAddr: ledgerAddr,
		claimTTL:   claimTTL,
		logger:     logger.With(slog.String("component", "settlement_engine")),
		now:        time.Now,
	}
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ClaimReward starts settlement for the caller's winning bet. The claimed
// flag is set before the decrypt request is submitted, closing the window in
// which a concurrent second call could queue a duplicate request. Returns the
// decrypt correlation id.
func (e *Engine) ClaimReward(ctx context.Context, caller common.Address, marketID uint64) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return uuid.Nil, err
	}
	if !m.Resolved {
		return uuid.Nil, domain.ErrNotResolved
	}
	b, err := e.bets.GetBet(ctx, marketID, caller)
	if err != nil {
		return uuid.Nil, err
	}
	if !b.Prediction.Matches(m.Outcome) {
		return uuid.Nil, domain.ErrWrongPrediction
	}
	if b.Claimed {
		return uuid.Nil, domain.ErrAlreadyClaimed
	}

	pools, err := e.bets.GetPools(ctx, marketID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("settlement: load pools: %w", err)
	}
	if _, winners := pools.Side(m.Outcome); winners == 0 {
		return uuid.Nil, domain.ErrNoWinners
	}

	// Anti-replay: close the claim before anything asynchronous happens.
	if err := e.bets.MarkClaimed(ctx, marketID, caller); err != nil {
		return uuid.Nil, err
	}

	return e.requestDecrypt(ctx, m, b, pools)
}

// ReclaimExpired reopens a claim whose decrypt callback never arrived within
// the expiry window: the stale pending entry is dropped and a fresh decrypt
// request submitted. The bet stays claimed throughout, so the anti-replay
// guard holds.
func (e *Engine) ReclaimExpired(ctx context.Context, caller common.Address, marketID uint64) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	claim, err := e.claims.GetByBet(ctx, marketID, caller)
	if err != nil {
		return uuid.Nil, err
	}
	if !claim.Expired(e.now()) {
		return uuid.Nil, domain.ErrClaimPending
	}
	if err := e.claims.Delete(ctx, claim.RequestID); err != nil {
		return uuid.Nil, fmt.Errorf("settlement: drop expired claim: %w", err)
	}

	if err := e.bus.Publish(ctx, domain.Event{
		Kind:     domain.EventClaimReopened,
		MarketID: marketID,
		Actor:    caller,
		Detail:   map[string]any{"stale_request_id": claim.RequestID.String()},
		At:       e.now(),
	}); err != nil {
		return uuid.Nil, fmt.Errorf("settlement: publish reopened: %w", err)
	}

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return uuid.Nil, err
	}
	b, err := e.bets.GetBet(ctx, marketID, caller)
	if err != nil {
		return uuid.Nil, err
	}
	pools, err := e.bets.GetPools(ctx, marketID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("settlement: load pools: %w", err)
	}
	return e.requestDecrypt(ctx, m, b, pools)
}

// requestDecrypt builds the encrypted reward expression, submits the decrypt
// request for (rewardNumerator, winningPool), and records the pending claim.
func (e *Engine) requestDecrypt(ctx context.Context, m domain.Market, b domain.Bet, pools domain.Pools) (uuid.UUID, error) {
	winningPool, _ := pools.Side(m.Outcome)
	losingPool, _ := pools.Side(oppositeOf(m.Outcome))

	totalPool, err := e.svc.Add(ctx, winningPool, losingPool)
	if err != nil {
		return uuid.Nil, fmt.Errorf("settlement: total pool: %w", err)
	}
	numerator, err := e.svc.Mul(ctx, b.Amount, totalPool)
	if err != nil {
		return uuid.Nil, fmt.Errorf("settlement: reward numerator: %w", err)
	}
	if err := e.svc.Grant(ctx, numerator, e.treasury); err != nil {
		return uuid.Nil, fmt.Errorf("settlement: grant numerator: %w", err)
	}

	requestID, err := e.svc.RequestDecryption(ctx, []domain.Handle{numerator, winningPool}, e.treasury)
	if err != nil {
		return uuid.Nil, fmt.Errorf("settlement: request decryption: %w", err)
	}

	now := e.now()
	if err := e.claims.Put(ctx, domain.PendingClaim{
		RequestID:   requestID,
		MarketID:    m.ID,
		User:        b.User,
		RequestedAt: now,
		ExpiresAt:   now.Add(e.claimTTL),
	}); err != nil {
		return uuid.Nil, fmt.Errorf("settlement: record pending claim: %w", err)
	}

	if err := e.bus.Publish(ctx, domain.Event{
		Kind:     domain.EventClaimRequested,
		MarketID: m.ID,
		Actor:    b.User,
		Detail:   map[string]any{"request_id": requestID.String()},
		At:       now,
	}); err != nil {
		return uuid.Nil, fmt.Errorf("settlement: publish requested: %w", err)
	}

	e.logger.InfoContext(ctx, "claim requested",
		slog.Uint64("market_id", m.ID),
		slog.String("request_id", requestID.String()),
	)
	return requestID, nil
}

// FinalizeReward is the decrypt callback. It verifies the proof, computes the
// plaintext reward, pays the claimant, emits the finalize event, and deletes
// the pending claim. A request id that no longer resolves to a pending claim
// fails, so a replayed callback can never double-pay.
func (e *Engine) FinalizeReward(ctx context.Context, res domain.DecryptResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	claim, err := e.claims.Get(ctx, res.RequestID)
	if err != nil {
		return err
	}
	if err := e.svc.CheckSignatures(res.RequestID, res.Plaintexts, res.Proof); err != nil {
		// Fatal for this callback; the claim stays in ClaimRequested until
		// it expires and is reopened.
		return err
	}
	if len(res.Plaintexts) != 2 {
		return fmt.Errorf("settlement: expected 2 plaintexts, got %d", len(res.Plaintexts))
	}
	numerator, denominator := res.Plaintexts[0], res.Plaintexts[1]

	reward := computeReward(numerator, denominator)

	if reward.Sign() > 0 {
		payout, err := e.svc.Encrypt(ctx, reward, e.treasury)
		if err != nil {
			return fmt.Errorf("settlement: encrypt reward: %w", err)
		}
		if err := e.svc.Grant(ctx, payout, claim.User); err != nil {
			return fmt.Errorf("settlement: grant claimant: %w", err)
		}
		if err := e.svc.Grant(ctx, payout, e.ledgerAddr); err != nil {
			return fmt.Errorf("settlement: grant ledger: %w", err)
		}
		if _, err := e.ledger.Transfer(ctx, e.treasury, claim.User, payout); err != nil {
			return fmt.Errorf("settlement: pay out: %w", err)
		}
	}

	// Deliberate privacy trade-off: the winner's derived reward and the two
	// decrypted intermediates become public at claim time.
	if err := e.bus.Publish(ctx, domain.Event{
		Kind:     domain.EventClaimFinalized,
		MarketID: claim.MarketID,
		Actor:    claim.User,
		Detail: map[string]any{
			"reward":       reward.String(),
			"numerator":    numerator.String(),
			"winning_pool": denominator.String(),
		},
		At: e.now(),
	}); err != nil {
		return fmt.Errorf("settlement: publish finalized: %w", err)
	}

	if err := e.claims.Delete(ctx, res.RequestID); err != nil {
		return fmt.Errorf("settlement: delete pending claim: %w", err)
	}

	e.logger.InfoContext(ctx, "claim finalized",
		slog.Uint64("market_id", claim.MarketID),
		slog.String("request_id", res.RequestID.String()),
		slog.String("reward", reward.String()),
	)
	return nil
}

// PendingClaim returns the caller's in-flight claim for a market, if any.
func (e *Engine) PendingClaim(ctx context.Context, caller common.Address, marketID uint64) (domain.PendingClaim, error) {
	return e.claims.GetByBet(ctx, marketID, caller)
}

// computeReward applies the fixed-point proportional payout:
// floor(floor(numerator*Scale/denominator)/Scale). A zero denominator yields
// zero; the winner-count guard makes that unreachable in practice.
func computeReward(numerator, denominator *big.Int) *big.Int {
	if denominator.Sign() <= 0 {
		return new(big.Int)
	}
	scale := big.NewInt(Scale)
	r := new(big.Int).Mul(numerator, scale)
	r.Quo(r, denominator)
	return r.Quo(r, scale)
}

// oppositeOf returns the other definite outcome.
func oppositeOf(o domain.Outcome) domain.Outcome {
	if o == domain.OutcomeYes {
		return domain.OutcomeNo
	}
	return domain.OutcomeYes
}
