package usecase

import (
	"github.com/google/uuid"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// PositionManager owns the open-position state of one run. It updates
// unrealized P&L per bar, triggers stop/target/timeout exits and emits the
// immutable trades of the closed ledger. One manager per run; never shared.
type PositionManager struct {
	runID       string
	cost        domain.CostModel
	guard       *LookAheadGuard
	maxHoldBars int

	open   []*domain.Position
	closed []domain.Trade
}

func NewPositionManager(runID string, cost domain.CostModel, guard *LookAheadGuard, maxHoldBars int) *PositionManager {
	return &PositionManager{
		runID:       runID,
		cost:        cost,
		guard:       guard,
		maxHoldBars: maxHoldBars,
	}
}

// Open converts a filled order into an open position.
func (m *PositionManager) Open(order *domain.Order, sig *domain.Signal, bar domain.Bar) *domain.Position {
	riskPerUnit := order.FillPrice - sig.Stop
	if sig.Side == domain.SideShort {
		riskPerUnit = sig.Stop - order.FillPrice
	}
	if riskPerUnit < 0 {
		riskPerUnit = 0
	}
	pos := &domain.Position{
		Symbol:           sig.Symbol,
		Side:             sig.Side,
		Quantity:         order.Quantity,
		EntryPrice:       order.FillPrice,
		EntryTime:        bar.Time,
		EntryBar:         order.FillBar,
		Stop:             sig.Stop,
		Target:           sig.Target,
		RiskPerUnit:      riskPerUnit,
		Commission:       order.Commission,
		Slippage:         order.Slippage,
		SignalID:         sig.ID,
		CampaignID:       sig.CampaignID,
		CorrelationGroup: sig.CorrelationGroup,
	}
	m.open = append(m.open, pos)
	return pos
}

// Update processes one bar for every open position. Stop and target are
// tested against the bar's direction-aware extremes, never its close; when
// both are touched within the same bar the stop wins (the conservative
// assumption, since OHLC alone cannot order the two touches).
func (m *PositionManager) Update(barIdx int, bar domain.Bar) []domain.Trade {
	var exited []domain.Trade
	kept := m.open[:0]
	for _, pos := range m.open {
		stopExtreme := m.guard.StopPrice(pos.Side, barIdx, bar)
		targetExtreme := m.guard.TargetPrice(pos.Side, barIdx, bar)

		stopHit := touchesStop(pos, stopExtreme)
		targetHit := pos.Target > 0 && touchesTarget(pos, targetExtreme)

		switch {
		case stopHit:
			exited = append(exited, m.close(pos, pos.Stop, barIdx, bar, domain.ExitStop))
		case targetHit:
			exited = append(exited, m.close(pos, pos.Target, barIdx, bar, domain.ExitTarget))
		case m.maxHoldBars > 0 && barIdx-pos.EntryBar >= m.maxHoldBars:
			exited = append(exited, m.close(pos, bar.Close, barIdx, bar, domain.ExitTimeout))
		default:
			pos.UnrealizedPnL = unrealized(pos, bar.Close)
			kept = append(kept, pos)
		}
	}
	m.open = kept
	m.closed = append(m.closed, exited...)
	return exited
}

// CloseAll liquidates remaining positions at the close of the final bar.
func (m *PositionManager) CloseAll(barIdx int, bar domain.Bar, reason domain.ExitReason) []domain.Trade {
	var exited []domain.Trade
	for _, pos := range m.open {
		exited = append(exited, m.close(pos, bar.Close, barIdx, bar, reason))
	}
	m.open = m.open[:0]
	m.closed = append(m.closed, exited...)
	return exited
}

// CloseOne exits a single position at the given price, removing it from
// the open set. Used for signal-reversal exits.
func (m *PositionManager) CloseOne(target *domain.Position, exitPrice float64, barIdx int, bar domain.Bar, reason domain.ExitReason) []domain.Trade {
	kept := m.open[:0]
	var exited []domain.Trade
	for _, pos := range m.open {
		if pos == target {
			exited = append(exited, m.close(pos, exitPrice, barIdx, bar, reason))
			continue
		}
		kept = append(kept, pos)
	}
	m.open = kept
	m.closed = append(m.closed, exited...)
	return exited
}

func (m *PositionManager) close(pos *domain.Position, exitPrice float64, barIdx int, bar domain.Bar, reason domain.ExitReason) domain.Trade {
	_, exitCommission := m.cost.Cost(opposite(pos.Side), pos.Quantity, bar)

	gross := (exitPrice - pos.EntryPrice) * pos.Quantity
	if pos.Side == domain.SideShort {
		gross = (pos.EntryPrice - exitPrice) * pos.Quantity
	}
	commission := pos.Commission + exitCommission
	net := gross - commission - pos.Slippage

	r := 0.0
	if initialRisk := pos.RiskPerUnit * pos.Quantity; initialRisk > 0 {
		r = net / initialRisk
	}

	return domain.Trade{
		ID:         uuid.NewString(),
		RunID:      m.runID,
		SignalID:   pos.SignalID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		EntryBar:   pos.EntryBar,
		ExitPrice:  exitPrice,
		ExitTime:   bar.Time,
		ExitBar:    barIdx,
		PnL:        net,
		RMultiple:  r,
		ExitReason: reason,
		Commission: commission,
		Slippage:   pos.Slippage,
		CampaignID: pos.CampaignID,
	}
}

// Open-risk aggregates consumed by the risk pipeline. All in fixed-point
// cents so cascaded sums carry no float drift.

func (m *PositionManager) PortfolioHeat() domain.Cents {
	var sum domain.Cents
	for _, pos := range m.open {
		sum += domain.CentsFromFloat(pos.OpenRisk())
	}
	return sum
}

func (m *PositionManager) CampaignRisk(campaignID string) domain.Cents {
	var sum domain.Cents
	for _, pos := range m.open {
		if campaignID != "" && pos.CampaignID == campaignID {
			sum += domain.CentsFromFloat(pos.OpenRisk())
		}
	}
	return sum
}

func (m *PositionManager) CorrelatedRisk(group string) domain.Cents {
	var sum domain.Cents
	for _, pos := range m.open {
		if group != "" && pos.CorrelationGroup == group {
			sum += domain.CentsFromFloat(pos.OpenRisk())
		}
	}
	return sum
}

// SymbolExposure is the open notional in one name, for the concentration cap.
func (m *PositionManager) SymbolExposure(symbol string) domain.Cents {
	var sum domain.Cents
	for _, pos := range m.open {
		if pos.Symbol == symbol {
			sum += domain.CentsFromFloat(pos.EntryPrice * pos.Quantity)
		}
	}
	return sum
}

func (m *PositionManager) OpenPositions() []*domain.Position { return m.open }
func (m *PositionManager) ClosedTrades() []domain.Trade      { return m.closed }

// UnrealizedTotal is the mark-to-market P&L of everything still open.
func (m *PositionManager) UnrealizedTotal() float64 {
	var sum float64
	for _, pos := range m.open {
		sum += pos.UnrealizedPnL
	}
	return sum
}

func touchesStop(pos *domain.Position, extreme float64) bool {
	if pos.Side == domain.SideShort {
		return extreme >= pos.Stop
	}
	return extreme <= pos.Stop
}

func touchesTarget(pos *domain.Position, extreme float64) bool {
	if pos.Side == domain.SideShort {
		return extreme <= pos.Target
	}
	return extreme >= pos.Target
}

func unrealized(pos *domain.Position, price float64) float64 {
	if pos.Side == domain.SideShort {
		return (pos.EntryPrice - price) * pos.Quantity
	}
	return (price - pos.EntryPrice) * pos.Quantity
}

func opposite(s domain.Side) domain.Side {
	if s == domain.SideLong {
		return domain.SideShort
	}
	return domain.SideLong
}
