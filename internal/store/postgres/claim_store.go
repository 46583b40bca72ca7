package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilworks/blindbet/internal/domain"
)

// ClaimStore implements domain.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a ClaimStore backed by the given connection pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Put inserts a pending claim.
func (s *ClaimStore) Put(ctx context.Context, c domain.PendingClaim) error {
	const query = `
		INSERT INTO pending_claims (request_id, market_id, bettor, requested_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		c.RequestID, c.MarketID, c.User.Hex(), c.RequestedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put pending claim: %w", err)
	}
	return nil
}

const claimCols = `request_id, market_id, bettor, requested_at, expires_at`

func scanClaim(row pgx.Row) (domain.PendingClaim, error) {
	var c domain.PendingClaim
	var bettor string
	err := row.Scan(&c.RequestID, &c.MarketID, &bettor, &c.RequestedAt, &c.ExpiresAt)
	if err != nil {
		return domain.PendingClaim{}, err
	}
	c.User = common.HexToAddress(bettor)
	return c, nil
}

// Get retrieves the pending claim for a correlation id.
func (s *ClaimStore) Get(ctx context.Context, requestID uuid.UUID) (domain.PendingClaim, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+claimCols+` FROM pending_claims WHERE request_id = $1`, requestID)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingClaim{}, domain.ErrClaimNotFound
		}
		return domain.PendingClaim{}, fmt.Errorf("postgres: get pending claim: %w", err)
	}
	return c, nil
}

// GetByBet retrieves the pending claim for a (market, user) pair.
func (s *ClaimStore) GetByBet(ctx context.Context, marketID uint64, user common.Address) (domain.PendingClaim, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+claimCols+` FROM pending_claims WHERE market_id = $1 AND bettor = $2`,
		marketID, user.Hex())
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingClaim{}, domain.ErrClaimNotFound
		}
		return domain.PendingClaim{}, fmt.Errorf("postgres: get pending claim by bet: %w", err)
	}
	return c, nil
}

// Delete removes a pending claim, failing when the id is unknown so callers
// can detect replayed callbacks.
func (s *ClaimStore) Delete(ctx context.Context, requestID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pending_claims WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("postgres: delete pending claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimNotFound
	}
	return nil
}
