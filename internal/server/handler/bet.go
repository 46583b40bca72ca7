package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

// BetService defines the methods the bet handler requires.
type BetService interface {
	PlaceBet(ctx context.Context, caller common.Address, marketID uint64, prediction domain.Prediction, amount domain.Handle, proof []byte) error
	Bet(ctx context.Context, caller common.Address, marketID uint64) (domain.Bet, error)
	Pools(ctx context.Context, marketID uint64) (domain.Pools, error)
}

// BetHandler serves bet placement and lookup endpoints.
type BetHandler struct {
	bets BetService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService) *BetHandler {
	return &BetHandler{bets: bets}
}

type placeBetRequest struct {
	Prediction   string `json:"prediction"`
	AmountHandle string `json:"amount_handle"`
	Proof        string `json:"proof"`
}

// PlaceBet stakes an encrypted amount on a market side.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
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

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var prediction domain.Prediction
	switch req.Prediction {
	case "yes":
		prediction = domain.PredictionYes
	case "no":
		prediction = domain.PredictionNo
	default:
		writeError(w, http.StatusBadRequest, "prediction must be yes or no")
		return
	}

	proof, err := hex.DecodeString(strings.TrimPrefix(req.Proof, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof encoding")
		return
	}

	if err := h.bets.PlaceBet(r.Context(), caller, id, prediction,
		domain.Handle(req.AmountHandle), proof); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "placed"})
}

type betResponse struct {
	MarketID     uint64        `json:"market_id"`
	AmountHandle domain.Handle `json:"amount_handle"`
	Prediction   string        `json:"prediction"`
	Claimed      bool          `json:"claimed"`
	PlacedAt     time.Time     `json:"placed_at"`
}

// GetBet returns the caller's own bet, including their encrypted amount
// handle. Other users' bets are not retrievable.
// GET /api/markets/{id}/bets/me
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
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

	b, err := h.bets.Bet(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, betResponse{
		MarketID:     b.MarketID,
		AmountHandle: b.Amount,
		Prediction:   b.Prediction.String(),
		Claimed:      b.Claimed,
		PlacedAt:     b.PlacedAt,
	})
}

type poolsResponse struct {
	MarketID uint64        `json:"market_id"`
	YesPool  domain.Handle `json:"yes_pool"`
	NoPool   domain.Handle `json:"no_pool"`
	YesCount int64         `json:"yes_count"`
	NoCount  int64         `json:"no_count"`
}

// GetPools returns the encrypted pool totals (opaque to anyone without a
// grant) and the plaintext counters.
// GET /api/markets/{id}/pools
func (h *BetHandler) GetPools(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	p, err := h.bets.Pools(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolsResponse{
		MarketID: p.MarketID,
		YesPool:  p.YesPool,
		NoPool:   p.NoPool,
		YesCount: p.YesCount,
		NoCount:  p.NoCount,
	})
}
