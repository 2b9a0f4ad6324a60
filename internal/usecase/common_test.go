package usecase_test

import (
	"time"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

const epsilon = 0.000001

func almostEqual(a, b float64) bool {
	return (a-b) < epsilon && (b-a) < epsilon
}

// flatBars builds n contiguous hourly bars with identical OHLCV, a neutral
// stream where nothing fires by itself.
func flatBars(n int) []domain.Bar {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Time: t0.Add(time.Duration(i) * time.Hour),
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	return bars
}

// springSignal builds a signal that clears every gate against an entry
// close of 100 and 100k equity with a 0.1% per-trade budget: 5% stop
// distance, reward/risk 2.4, drying volume in phase C.
func springSignal(decisionBar int) domain.Signal {
	return domain.Signal{
		ID:              "sig-1",
		Symbol:          "AAPL",
		Pattern:         domain.PatternSpring,
		Side:            domain.SideLong,
		DecisionBar:     decisionBar,
		Confidence:      80,
		VolumeRatio:     0.5,
		Phase:           domain.PhaseC,
		PhaseConfidence: 80,
		PhaseBars:       10,
		Stop:            95,
		Target:          112,
	}
}

// simConfig is the engine config the simulation tests share: no spread, no
// commission, small per-trade budget so concentration never interferes.
func simConfig() domain.RunConfig {
	return domain.RunConfig{
		Symbol:              "AAPL",
		Timeframe:           "1h",
		InitialEquity:       100000,
		RiskPerTradePct:     0.1,
		MaxPatternRiskPct:   2,
		MaxConcentrationPct: 20,
		MaxPortfolioHeatPct: 10,
		MaxCampaignRiskPct:  5,
		MaxCorrelatedPct:    6,
		FillWindowBars:      3,
		GapToleranceBar:     1,
	}
}
