package usecase

import (
	"github.com/google/uuid"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// NextBarOpenFill is the one sanctioned fill policy: a pending order fills
// at the open of the first bar inside its fill window, which starts at the
// bar immediately after the signal's decision bar. Filling at the decision
// bar's own close is look-ahead and is structurally impossible here.
type NextBarOpenFill struct{}

func (NextBarOpenFill) TryFill(order *domain.Order, barIdx int, bar domain.Bar) (float64, bool) {
	if barIdx < order.EarliestFillBar || barIdx > order.ExpiryBar {
		return 0, false
	}
	return bar.Open, true
}

var _ domain.FillPolicy = NextBarOpenFill{}

// OrderSimulator turns a validated signal into at most one order and walks
// it through Pending -> Filled | Expired against the bar stream. It owns
// the order for its lifetime and never mutates bars.
type OrderSimulator struct {
	cost  domain.CostModel
	fill  domain.FillPolicy
	guard *LookAheadGuard
}

func NewOrderSimulator(cost domain.CostModel, fill domain.FillPolicy, guard *LookAheadGuard) *OrderSimulator {
	if fill == nil {
		fill = NextBarOpenFill{}
	}
	return &OrderSimulator{cost: cost, fill: fill, guard: guard}
}

// NewOrder creates the pending order for a signal that passed validation.
// The order may fill no earlier than decision bar + 1 and expires if still
// pending after fillWindowBars bars.
func (s *OrderSimulator) NewOrder(sig *domain.Signal, quantity float64, fillWindowBars int) *domain.Order {
	earliest := sig.DecisionBar + 1
	return &domain.Order{
		ID:              uuid.NewString(),
		SignalID:        sig.ID,
		Symbol:          sig.Symbol,
		Side:            sig.Side,
		Quantity:        quantity,
		State:           domain.OrderPending,
		EarliestFillBar: earliest,
		ExpiryBar:       earliest + fillWindowBars - 1,
	}
}

// Advance processes one bar for a pending order. Returns true exactly when
// the order filled on this bar.
func (s *OrderSimulator) Advance(order *domain.Order, barIdx int, bar domain.Bar) bool {
	if order.State != domain.OrderPending {
		return false
	}
	if barIdx > order.ExpiryBar {
		order.State = domain.OrderExpired
		return false
	}

	ref, ok := s.fill.TryFill(order, barIdx, bar)
	if !ok {
		return false
	}
	if s.guard != nil {
		s.guard.RecordAccess(barIdx, barIdx, "order fill open")
	}

	price, commission := s.cost.Cost(order.Side, order.Quantity, bar)
	order.State = domain.OrderFilled
	order.FillBar = barIdx
	order.FillPrice = price
	order.Commission = commission
	order.Slippage = slippagePaid(order.Side, ref, price, order.Quantity)
	return true
}

// ExpireAtStreamEnd marks a still-pending order expired when the bar stream
// ends before it could fill. Not an error.
func (s *OrderSimulator) ExpireAtStreamEnd(order *domain.Order) {
	if order.State == domain.OrderPending {
		order.State = domain.OrderExpired
	}
}

func slippagePaid(side domain.Side, ref, fill, qty float64) float64 {
	d := fill - ref
	if side == domain.SideShort {
		d = ref - fill
	}
	if d < 0 {
		d = 0
	}
	return d * qty
}
