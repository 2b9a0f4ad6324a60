package usecase

import (
	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// SpreadImpactCostModel is the default cost model: a liquidity term from
// the instrument's typical spread plus a market-impact term scaling with
// order size relative to bar volume. Stateless, so it is independently
// testable and swappable.
type SpreadImpactCostModel struct {
	SpreadBps         float64 // typical full spread in basis points
	ImpactCoeff       float64 // bps of slippage per unit of qty/volume
	CommissionFlat    float64
	CommissionPerUnit float64
}

func NewCostModel(cfg domain.RunConfig) *SpreadImpactCostModel {
	return &SpreadImpactCostModel{
		SpreadBps:         cfg.SpreadBps,
		ImpactCoeff:       cfg.ImpactCoeff,
		CommissionFlat:    cfg.CommissionFlat,
		CommissionPerUnit: cfg.CommissionPerUnit,
	}
}

// Cost returns the slippage-adjusted fill price and the commission for an
// order filling at this bar's open. Slippage always moves the price against
// the order: up for buys, down for sells.
func (m *SpreadImpactCostModel) Cost(side domain.Side, quantity float64, bar domain.Bar) (float64, float64) {
	base := bar.Open

	slipBps := m.SpreadBps / 2
	if m.ImpactCoeff > 0 && bar.Volume > 0 && quantity > 0 {
		slipBps += m.ImpactCoeff * (quantity / bar.Volume) * 10000
	}
	slip := base * slipBps / 10000

	price := base + slip
	if side == domain.SideShort {
		price = base - slip
	}

	commission := m.CommissionFlat + m.CommissionPerUnit*quantity
	return price, commission
}

var _ domain.CostModel = (*SpreadImpactCostModel)(nil)
