package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome is the resolved result of a binary market.
type Outcome uint8

const (
	OutcomeNo Outcome = iota
	OutcomeYes
	OutcomeUnresolved
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeNo:
		return "no"
	case OutcomeYes:
		return "yes"
	default:
		return "unresolved"
	}
}

// Prediction is the side a bettor takes on a binary market.
type Prediction uint8

const (
	PredictionNo Prediction = iota
	PredictionYes
)

// String returns a human-readable prediction label.
func (p Prediction) String() string {
	if p == PredictionYes {
		return "yes"
	}
	return "no"
}

// Valid reports whether the prediction is one of the two defined sides.
func (p Prediction) Valid() bool {
	return p == PredictionNo || p == PredictionYes
}

// Matches reports whether the prediction corresponds to the given outcome.
func (p Prediction) Matches(o Outcome) bool {
	return (p == PredictionYes && o == OutcomeYes) ||
		(p == PredictionNo && o == OutcomeNo)
}

// Market is a binary-outcome prediction market. Records are created once,
// mutated only by resolution, and never deleted; ids are dense and strictly
// increasing.
type Market struct {
	ID             uint64
	Question       string
	Creator        common.Address
	EndTime        time.Time // betting closes
	ResolutionTime time.Time // earliest moment the creator may resolve
	Resolved       bool
	Outcome        Outcome
	CreatedAt      time.Time
}

// Active reports whether the market still accepts bets at the given time.
func (m Market) Active(now time.Time) bool {
	return !m.Resolved && now.Before(m.EndTime)
}

// Resolvable reports whether the creator may set the outcome at the given
// time.
func (m Market) Resolvable(now time.Time) bool {
	return !m.Resolved && !now.Before(m.ResolutionTime)
}
