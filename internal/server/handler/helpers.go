package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain sentinel error onto an HTTP status and
// writes it. Unrecognized errors become a generic 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrBetNotFound),
		errors.Is(err, domain.ErrClaimNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidDelay),
		errors.Is(err, domain.ErrInvalidPrediction),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrBadProof):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotCreator):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrNotResolved),
		errors.Is(err, domain.ErrBettingClosed),
		errors.Is(err, domain.ErrAlreadyBet),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrClaimPending),
		errors.Is(err, domain.ErrTooEarly),
		errors.Is(err, domain.ErrWrongPrediction),
		errors.Is(err, domain.ErrNoWinners),
		errors.Is(err, domain.ErrNoAllowance):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// callerAddress extracts the caller's principal from the request. Upstream
// authentication of the address is out of scope; the service trusts its
// deployment boundary.
func callerAddress(r *http.Request) (common.Address, bool) {
	raw := r.Header.Get("X-Blindbet-Address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathID extracts a numeric path parameter using Go 1.22+ routing.
func pathID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	return id, err == nil
}
