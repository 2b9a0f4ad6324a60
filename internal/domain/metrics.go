package domain

import (
	"encoding/json"
	"math"
)

// Metrics is the aggregate performance of one completed simulation.
//
// Conventions that every consumer relies on:
//   - MaxDrawdown is a fraction in [0,1], never 0-100.
//   - ProfitFactor is +Inf when there are no losing trades; that is the one
//     sentinel for the undefined case, serialized as the string "inf".
type Metrics struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // fraction in [0,1]

	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"` // positive magnitude
	NetProfit   float64 `json:"net_profit"`
	TotalReturn float64 `json:"total_return"` // fractional

	ProfitFactor InfFloat `json:"profit_factor"`
	Expectancy   float64  `json:"expectancy"` // mean PnL per trade
	AvgRMultiple float64  `json:"avg_r_multiple"`

	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"` // fraction in [0,1]
	CAGR        float64 `json:"cagr"`
}

// InfFloat is a float64 that survives JSON round-trips when infinite.
// encoding/json rejects IEEE infinities, so it marshals +Inf as "inf".
type InfFloat float64

func (f InfFloat) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(f), 1) {
		return []byte(`"inf"`), nil
	}
	if math.IsInf(float64(f), -1) {
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(float64(f))
}

func (f *InfFloat) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"inf"`:
		*f = InfFloat(math.Inf(1))
		return nil
	case `"-inf"`:
		*f = InfFloat(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = InfFloat(v)
	return nil
}
