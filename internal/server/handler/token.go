package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

// TokenLedger defines the ledger operations the token handler requires.
type TokenLedger interface {
	Mint(ctx context.Context, account common.Address, value *big.Int) error
	Approve(payer, operator common.Address, until time.Time)
	BalanceOf(ctx context.Context, account common.Address) (domain.Handle, error)
}

// Encrypter turns a plaintext value into a confidential handle owned by the
// caller.
type Encrypter interface {
	Encrypt(ctx context.Context, value *big.Int, owner common.Address) (domain.Handle, error)
}

// TokenHandler serves the confidential token endpoints: handle creation,
// operator approval, balance lookup, and the development faucet.
type TokenHandler struct {
	ledger TokenLedger
	enc    Encrypter

	// faucet enables POST /api/token/mint. Only wired in memory mode.
	faucet bool
}

// NewTokenHandler creates a TokenHandler. When faucet is true the mint
// endpoint is enabled.
func NewTokenHandler(ledger TokenLedger, enc Encrypter, faucet bool) *TokenHandler {
	return &TokenHandler{ledger: ledger, enc: enc, faucet: faucet}
}

type encryptRequest struct {
	Value string `json:"value"`
}

// Encrypt creates a confidential handle for a plaintext value, owned by the
// caller. The handle can then be passed as a bet amount.
// POST /api/token/encrypt
func (h *TokenHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid caller address")
		return
	}

	var req encryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok || value.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "value must be a non-negative decimal integer")
		return
	}

	handle, err := h.enc.Encrypt(r.Context(), value, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"handle": string(handle),
	})
}

type approveRequest struct {
	Operator   string `json:"operator"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Approve grants an operator a time-bounded allowance over the caller's
// balance.
// POST /api/token/approve
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid caller address")
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Operator) {
		writeError(w, http.StatusBadRequest, "operator is not a valid address")
		return
	}
	if req.TTLSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "ttl_seconds must be positive")
		return
	}

	until := time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
	h.ledger.Approve(caller, common.HexToAddress(req.Operator), until)

	writeJSON(w, http.StatusOK, map[string]any{
		"operator": common.HexToAddress(req.Operator).Hex(),
		"until":    until.UTC().Format(time.RFC3339),
	})
}

// Balance returns the caller's encrypted balance handle.
// GET /api/token/balance
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid caller address")
		return
	}

	handle, err := h.ledger.BalanceOf(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance_handle": string(handle),
	})
}

type mintRequest struct {
	Value string `json:"value"`
}

// Mint credits the caller's balance from thin air. Development only; returns
// 404 when the faucet is disabled.
// POST /api/token/mint
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	if !h.faucet {
		writeError(w, http.StatusNotFound, "faucet disabled")
		return
	}

	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid caller address")
		return
	}

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok || value.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "value must be a positive decimal integer")
		return
	}

	if err := h.ledger.Mint(r.Context(), caller, value); err != nil {
		writeDomainError(w, err)
		return
	}

	handle, err := h.ledger.BalanceOf(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance_handle": string(handle),
	})
}
