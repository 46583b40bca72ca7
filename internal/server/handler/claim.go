package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilworks/blindbet/internal/domain"
)

// SettlementEngine defines the methods the claim handler requires.
type SettlementEngine interface {
	ClaimReward(ctx context.Context, caller common.Address, marketID uint64) (uuid.UUID, error)
	ReclaimExpired(ctx context.Context, caller common.Address, marketID uint64) (uuid.UUID, error)
	FinalizeReward(ctx context.Context, res domain.DecryptResult) error
	PendingClaim(ctx context.Context, caller common.Address, marketID uint64) (domain.PendingClaim, error)
}

// ClaimHandler serves the claim state machine endpoints, including the
// externally-invoked decrypt callback.
type ClaimHandler struct {
	engine SettlementEngine
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(engine SettlementEngine) *ClaimHandler {
	return &ClaimHandler{engine: engine}
}

// ClaimReward starts settlement for the caller's winning bet.
// POST /api/markets/{id}/claims
func (h *ClaimHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
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

	requestID, err := h.engine.ClaimReward(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": requestID.String(),
	})
}

// ReclaimExpired reopens a claim whose callback never arrived.
// POST /api/markets/{id}/claims/reopen
func (h *ClaimHandler) ReclaimExpired(w http.ResponseWriter, r *http.Request) {
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

	requestID, err := h.engine.ReclaimExpired(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": requestID.String(),
	})
}

type pendingClaimResponse struct {
	RequestID   string    `json:"request_id"`
	MarketID    uint64    `json:"market_id"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// GetPendingClaim returns the caller's in-flight claim, if any.
// GET /api/markets/{id}/claims/me
func (h *ClaimHandler) GetPendingClaim(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.engine.PendingClaim(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingClaimResponse{
		RequestID:   c.RequestID.String(),
		MarketID:    c.MarketID,
		RequestedAt: c.RequestedAt,
		ExpiresAt:   c.ExpiresAt,
	})
}

type decryptCallbackRequest struct {
	RequestID  string   `json:"request_id"`
	Plaintexts []string `json:"plaintexts"` // decimal strings
	Proof      string   `json:"proof"`      // hex
}

// DecryptCallback is the external oracle's finalize entry point. Proof
// verification failure is fatal for the callback and leaves the claim
// pending.
// POST /api/callbacks/decrypt
func (h *ClaimHandler) DecryptCallback(w http.ResponseWriter, r *http.Request) {
	var req decryptCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	proof, err := hex.DecodeString(strings.TrimPrefix(req.Proof, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof encoding")
		return
	}

	plaintexts := make([]*big.Int, 0, len(req.Plaintexts))
	for _, s := range req.Plaintexts {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid plaintext value")
			return
		}
		plaintexts = append(plaintexts, v)
	}

	if err := h.engine.FinalizeReward(r.Context(), domain.DecryptResult{
		RequestID:  requestID,
		Plaintexts: plaintexts,
		Proof:      proof,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}
