package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

// MarketRegistry defines the methods the market handler requires from the
// registry. Declared locally so the handler package does not depend on the
// concrete implementation.
type MarketRegistry interface {
	CreateMarket(ctx context.Context, creator common.Address, question string, duration, delay time.Duration) (uint64, error)
	ResolveMarket(ctx context.Context, caller common.Address, id uint64, outcome domain.Outcome) error
	Get(ctx context.Context, id uint64) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Active(ctx context.Context, id uint64) (bool, error)
	Resolvable(ctx context.Context, id uint64) (bool, error)
}

// PoolReader exposes the plaintext participation counters for a market.
type PoolReader interface {
	Pools(ctx context.Context, marketID uint64) (domain.Pools, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	registry MarketRegistry
	pools    PoolReader
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(registry MarketRegistry, pools PoolReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		registry: registry,
		pools:    pools,
		logger:   logger,
	}
}

type createMarketRequest struct {
	Question      string `json:"question"`
	DurationHours int64  `json:"duration_hours"`
	DelayHours    int64  `json:"delay_hours"`
}

type marketResponse struct {
	ID             uint64         `json:"id"`
	Question       string         `json:"question"`
	Creator        common.Address `json:"creator"`
	EndTime        time.Time      `json:"end_time"`
	ResolutionTime time.Time      `json:"resolution_time"`
	Resolved       bool           `json:"resolved"`
	Outcome        string         `json:"outcome"`
	CreatedAt      time.Time      `json:"created_at"`
	YesCount       int64          `json:"yes_count"`
	NoCount        int64          `json:"no_count"`
	Active         bool           `json:"active"`
	Resolvable     bool           `json:"resolvable"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid caller address")
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.registry.CreateMarket(r.Context(), caller, req.Question,
		time.Duration(req.DurationHours)*time.Hour,
		time.Duration(req.DelayHours)*time.Hour,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"market_id": id})
}

type resolveMarketRequest struct {
	Outcome string `json:"outcome"`
}

// ResolveMarket sets a market's outcome.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid caller address")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var outcome domain.Outcome
	switch req.Outcome {
	case "yes":
		outcome = domain.OutcomeYes
	case "no":
		outcome = domain.OutcomeNo
	default:
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	if err := h.registry.ResolveMarket(r.Context(), caller, id, outcome); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": req.Outcome})
}

// GetMarket returns one market's metadata, counters, and predicates.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	resp, err := h.marketResponse(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns markets in id order with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.registry.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	total, err := h.registry.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		resp, err := h.marketResponse(r.Context(), m.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// marketResponse assembles the public view of one market.
func (h *MarketHandler) marketResponse(ctx context.Context, id uint64) (marketResponse, error) {
	m, err := h.registry.Get(ctx, id)
	if err != nil {
		return marketResponse{}, err
	}
	pools, err := h.pools.Pools(ctx, id)
	if err != nil {
		return marketResponse{}, err
	}
	active, err := h.registry.Active(ctx, id)
	if err != nil {
		return marketResponse{}, err
	}
	resolvable, err := h.registry.Resolvable(ctx, id)
	if err != nil {
		return marketResponse{}, err
	}

	outcome := "unresolved"
	if m.Resolved {
		outcome = m.Outcome.String()
	}
	return marketResponse{
		ID:             m.ID,
		Question:       m.Question,
		Creator:        m.Creator,
		EndTime:        m.EndTime,
		ResolutionTime: m.ResolutionTime,
		Resolved:       m.Resolved,
		Outcome:        outcome,
		CreatedAt:      m.CreatedAt,
		YesCount:       pools.YesCount,
		NoCount:        pools.NoCount,
		Active:         active,
		Resolvable:     resolvable,
	}, nil
}
