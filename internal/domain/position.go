package domain

import (
	"fmt"
	"strings"
	"time"
)

// NormalizePair uppercases and trims a pair code.
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

// ValidatePair checks that a pair code is exactly six ASCII letters, the
// "EURUSD" form used throughout the system.
func ValidatePair(pair string) error {
	p := NormalizePair(pair)
	if len(p) != 6 {
		return fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	for _, r := range p {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidPair, pair)
		}
	}
	return nil
}

// Direction is the side of a trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Valid reports whether the direction is one of the two known sides.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Outcome records which exit level closed a position.
type Outcome string

const (
	OutcomeTookProfit Outcome = "take_profit"
	OutcomeStoppedOut Outcome = "stop_loss"
)

// Label returns the short human-readable form used in notifications.
func (o Outcome) Label() string {
	switch o {
	case OutcomeTookProfit:
		return "TP"
	case OutcomeStoppedOut:
		return "SL"
	default:
		return string(o)
	}
}

// Position is an open trade awaiting a take-profit or stop-loss hit.
// Direction, Entry, TakeProfit, and StopLoss are immutable after creation;
// the position exists until the owner deletes it or the monitor closes it,
// whichever happens first.
type Position struct {
	ID         string
	OwnerID    string
	Pair       string // normalized 6-letter code, e.g. "EURUSD"
	Direction  Direction
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	LotSize    *float64 // nil means unsized: no monetary PnL is computed
	OpenedAt   time.Time
}

// ClosedPosition is an append-only ledger record written in the same
// transaction that removes the corresponding Position.
type ClosedPosition struct {
	ID         string
	OwnerID    string
	Pair       string
	Direction  Direction
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	LotSize    *float64
	ExitPrice  float64
	Outcome    Outcome
	Profit     float64 // signed; zero when the position had no lot size
	OpenedAt   time.Time
	ClosedAt   time.Time
}
