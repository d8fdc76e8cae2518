// Package fx provides pip arithmetic and exit-level evaluation for currency
// pairs.
package fx

import (
	"math"
	"strings"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

// PipValuePerLot is the fixed dollar value of one pip per standard lot.
// This is a deliberate simplification inherited from the tracker's policy,
// not a broker-accurate contract size.
const PipValuePerLot = 10.0

const (
	pipSizeDefault = 0.0001
	pipSizeJPY     = 0.01
)

// PipSize returns the size of one pip for the given pair: 0.01 when the
// quote currency is JPY, 0.0001 otherwise.
func PipSize(pair string) float64 {
	if strings.HasSuffix(strings.ToUpper(pair), "JPY") {
		return pipSizeJPY
	}
	return pipSizeDefault
}

// PipDistance returns the rounded absolute distance between two prices in
// pips. It is symmetric in its price arguments and zero when they are equal.
func PipDistance(a, b float64, pair string) int {
	return int(math.Round(math.Abs(a-b) / PipSize(pair)))
}

// Profit converts a pip distance into an unsigned dollar amount for the
// given lot size. The caller applies the sign based on direction and
// outcome. A zero lot size yields zero.
func Profit(pips int, lots float64) float64 {
	return float64(pips) * lots * PipValuePerLot
}

// EvaluateExit applies direction-aware hit detection to a quote price and
// reports which exit level, if any, it triggers.
//
// When a single quote satisfies both levels at once (a gapped or stale
// tick), take-profit wins. That priority is a documented policy rule, not
// an artifact of check ordering.
func EvaluateExit(dir domain.Direction, price, takeProfit, stopLoss float64) (domain.Outcome, bool) {
	var hitTP, hitSL bool
	switch dir {
	case domain.DirectionBuy:
		hitTP = price >= takeProfit
		hitSL = price <= stopLoss
	case domain.DirectionSell:
		hitTP = price <= takeProfit
		hitSL = price >= stopLoss
	}

	switch {
	case hitTP:
		return domain.OutcomeTookProfit, true
	case hitSL:
		return domain.OutcomeStoppedOut, true
	default:
		return "", false
	}
}
