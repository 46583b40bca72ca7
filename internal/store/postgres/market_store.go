package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilworks/blindbet/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. BIGSERIAL ids
// keep the market id space dense and strictly increasing.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts a market and returns the assigned id.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (uint64, error) {
	const query = `
		INSERT INTO markets (
			question, creator, end_time, resolution_time,
			resolved, outcome, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id uint64
	err := s.pool.QueryRow(ctx, query,
		m.Question, m.Creator.Hex(), m.EndTime, m.ResolutionTime,
		m.Resolved, int16(m.Outcome), m.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create market: %w", err)
	}
	return id, nil
}

const marketCols = `id, question, creator, end_time, resolution_time,
	resolved, outcome, created_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var creator string
	var outcome int16
	err := row.Scan(
		&m.ID, &m.Question, &creator, &m.EndTime, &m.ResolutionTime,
		&m.Resolved, &outcome, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Creator = common.HexToAddress(creator)
	m.Outcome = domain.Outcome(outcome)
	return m, nil
}

// Get retrieves a market by id.
func (s *MarketStore) Get(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// SetResolved marks the market resolved with the given outcome.
func (s *MarketStore) SetResolved(ctx context.Context, id uint64, outcome domain.Outcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET resolved = TRUE, outcome = $2 WHERE id = $1`,
		id, int16(outcome),
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

// List returns markets in id order with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
