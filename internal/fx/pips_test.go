package fx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

func TestPipSize(t *testing.T) {
	tests := []struct {
		pair string
		want float64
	}{
		{"EURUSD", 0.0001},
		{"GBPUSD", 0.0001},
		{"USDJPY", 0.01},
		{"EURJPY", 0.01},
		{"eurjpy", 0.01},
		{"AUDNZD", 0.0001},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PipSize(tt.pair), "pair %s", tt.pair)
	}
}

func TestPipDistanceSymmetry(t *testing.T) {
	pairs := []struct {
		a, b float64
		pair string
	}{
		{1.1000, 1.1051, "EURUSD"},
		{154.32, 153.88, "USDJPY"},
		{0.9981, 1.0004, "USDCHF"},
	}
	for _, tt := range pairs {
		assert.Equal(t, PipDistance(tt.a, tt.b, tt.pair), PipDistance(tt.b, tt.a, tt.pair))
	}
}

func TestPipDistanceZeroOnEqualPrices(t *testing.T) {
	assert.Equal(t, 0, PipDistance(1.2345, 1.2345, "EURUSD"))
	assert.Equal(t, 0, PipDistance(150.00, 150.00, "USDJPY"))
}

func TestPipDistanceRounds(t *testing.T) {
	// 1.10513 - 1.1000 = 51.3 pips -> 51.
	assert.Equal(t, 51, PipDistance(1.10513, 1.1000, "EURUSD"))
	// 51.7 pips -> 52.
	assert.Equal(t, 52, PipDistance(1.10517, 1.1000, "EURUSD"))
	// JPY pair uses 0.01 pip size: 154.50 - 154.00 = 50 pips.
	assert.Equal(t, 50, PipDistance(154.50, 154.00, "USDJPY"))
}

func TestProfit(t *testing.T) {
	assert.Equal(t, 510.0, Profit(51, 1.0))
	assert.Equal(t, 25.5, Profit(51, 0.05))
	assert.Equal(t, 0.0, Profit(51, 0))
	assert.Equal(t, 0.0, Profit(0, 2.0))
}

func TestEvaluateExitBuy(t *testing.T) {
	const tp, sl = 1.1050, 1.0950

	outcome, hit := EvaluateExit(domain.DirectionBuy, 1.1010, tp, sl)
	assert.False(t, hit)
	assert.Empty(t, outcome)

	outcome, hit = EvaluateExit(domain.DirectionBuy, 1.1051, tp, sl)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeTookProfit, outcome)

	// Exactly at the level counts as a hit.
	outcome, hit = EvaluateExit(domain.DirectionBuy, tp, tp, sl)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeTookProfit, outcome)

	outcome, hit = EvaluateExit(domain.DirectionBuy, 1.0949, tp, sl)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeStoppedOut, outcome)
}

func TestEvaluateExitSell(t *testing.T) {
	const tp, sl = 1.0950, 1.1050

	outcome, hit := EvaluateExit(domain.DirectionSell, 1.1000, tp, sl)
	assert.False(t, hit)
	assert.Empty(t, outcome)

	outcome, hit = EvaluateExit(domain.DirectionSell, 1.0949, tp, sl)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeTookProfit, outcome)

	outcome, hit = EvaluateExit(domain.DirectionSell, 1.1051, tp, sl)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeStoppedOut, outcome)
}

func TestEvaluateExitTakeProfitPriority(t *testing.T) {
	// A misconfigured buy where sl > tp: a quote above both satisfies the
	// TP test and the SL test simultaneously. Take-profit must win.
	outcome, hit := EvaluateExit(domain.DirectionBuy, 1.1060, 1.1050, 1.1070)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeTookProfit, outcome)

	// Same for a sell with crossed levels.
	outcome, hit = EvaluateExit(domain.DirectionSell, 1.0940, 1.0950, 1.0930)
	assert.True(t, hit)
	assert.Equal(t, domain.OutcomeTookProfit, outcome)
}

func TestEvaluateExitUnknownDirection(t *testing.T) {
	_, hit := EvaluateExit(domain.Direction("hold"), 1.2000, 1.1050, 1.0950)
	assert.False(t, hit)
}
