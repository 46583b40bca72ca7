package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilworks/blindbet/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// BetStore implements domain.BetStore using PostgreSQL. The (market_id,
// bettor) primary key enforces the one-bet-per-pair invariant at the
// storage layer as well.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// CreateBet inserts a bet, mapping a duplicate-key violation to
// domain.ErrAlreadyBet.
func (s *BetStore) CreateBet(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (market_id, bettor, amount, prediction, claimed, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		b.MarketID, b.User.Hex(), string(b.Amount),
		int16(b.Prediction), b.Claimed, b.PlacedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyBet
		}
		return fmt.Errorf("postgres: create bet: %w", err)
	}
	return nil
}

// GetBet retrieves the bet for (marketID, user).
func (s *BetStore) GetBet(ctx context.Context, marketID uint64, user common.Address) (domain.Bet, error) {
	const query = `
		SELECT market_id, bettor, amount, prediction, claimed, placed_at
		FROM bets WHERE market_id = $1 AND bettor = $2`

	var b domain.Bet
	var bettor, amount string
	var prediction int16
	err := s.pool.QueryRow(ctx, query, marketID, user.Hex()).Scan(
		&b.MarketID, &bettor, &amount, &prediction, &b.Claimed, &b.PlacedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrBetNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet: %w", err)
	}
	b.User = common.HexToAddress(bettor)
	b.Amount = domain.Handle(amount)
	b.Prediction = domain.Prediction(prediction)
	return b, nil
}

// MarkClaimed flips the claimed flag for an unclaimed bet.
func (s *BetStore) MarkClaimed(ctx context.Context, marketID uint64, user common.Address) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET claimed = TRUE
		 WHERE market_id = $1 AND bettor = $2 AND NOT claimed`,
		marketID, user.Hex(),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetBet(ctx, marketID, user); getErr != nil {
			return getErr
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// InitPools inserts a market's initial accumulators.
func (s *BetStore) InitPools(ctx context.Context, p domain.Pools) error {
	const query = `
		INSERT INTO pools (market_id, yes_pool, no_pool, yes_count, no_count)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID, string(p.YesPool), string(p.NoPool), p.YesCount, p.NoCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: init pools: %w", err)
	}
	return nil
}

// GetPools retrieves a market's accumulators and counters.
func (s *BetStore) GetPools(ctx context.Context, marketID uint64) (domain.Pools, error) {
	const query = `
		SELECT market_id, yes_pool, no_pool, yes_count, no_count
		FROM pools WHERE market_id = $1`

	var p domain.Pools
	var yesPool, noPool string
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&p.MarketID, &yesPool, &noPool, &p.YesCount, &p.NoCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pools{}, domain.ErrMarketNotFound
		}
		return domain.Pools{}, fmt.Errorf("postgres: get pools: %w", err)
	}
	p.YesPool = domain.Handle(yesPool)
	p.NoPool = domain.Handle(noPool)
	return p, nil
}

// UpdatePools replaces a market's accumulators and counters.
func (s *BetStore) UpdatePools(ctx context.Context, p domain.Pools) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools SET yes_pool = $2, no_pool = $3, yes_count = $4, no_count = $5
		 WHERE market_id = $1`,
		p.MarketID, string(p.YesPool), string(p.NoPool), p.YesCount, p.NoCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: update pools: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}
