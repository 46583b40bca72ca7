package domain

import "errors"

var (
	// Validation failures: rejected before any state change.
	ErrInvalidDuration   = errors.New("duration out of range")
	ErrInvalidDelay      = errors.New("resolution delay too short")
	ErrInvalidPrediction = errors.New("invalid prediction")
	ErrInvalidOutcome    = errors.New("invalid outcome")

	// State conflicts.
	ErrMarketNotFound  = errors.New("market not found")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotResolved     = errors.New("market not resolved")
	ErrBettingClosed   = errors.New("betting closed")
	ErrAlreadyBet      = errors.New("bet already placed")
	ErrBetNotFound     = errors.New("bet not found")
	ErrAlreadyClaimed  = errors.New("reward already claimed")
	ErrClaimNotFound   = errors.New("pending claim not found")
	ErrClaimPending    = errors.New("claim still pending")

	// Authorization and timing.
	ErrNotCreator   = errors.New("caller is not the market creator")
	ErrTooEarly     = errors.New("resolution time not reached")
	ErrNotAllowed   = errors.New("principal lacks access grant")
	ErrNoAllowance  = errors.New("operator allowance missing or expired")
	ErrInsufficient = errors.New("insufficient balance")

	// Business rules.
	ErrWrongPrediction = errors.New("prediction does not match outcome")
	ErrNoWinners       = errors.New("no bets on the winning side")

	// Confidential service.
	ErrHandleNotFound = errors.New("unknown handle")
	ErrBadProof       = errors.New("proof verification failed")
)
