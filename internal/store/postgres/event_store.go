package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilworks/blindbet/internal/domain"
)

// EventStore implements domain.EventStore as an append-only PostgreSQL log.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append records an event.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (kind, market_id, actor, detail, at)
		 VALUES ($1, $2, $3, $4, $5)`,
		string(e.Kind), e.MarketID, e.Actor.Hex(), detail, e.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event: %w", err)
	}
	return nil
}

// ListByMarket returns a market's events in append order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT kind, market_id, actor, detail, at
		FROM events WHERE market_id = $1 ORDER BY seq`
	args := []any{marketID}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind, actor string
		var detail []byte
		if err := rows.Scan(&kind, &e.MarketID, &actor, &detail, &e.At); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.Actor = common.HexToAddress(actor)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
