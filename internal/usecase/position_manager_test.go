package usecase_test

import (
	"testing"

	"github.com/vitos/wyckoff_backtest/internal/domain"
	"github.com/vitos/wyckoff_backtest/internal/usecase"
)

func openLong(t *testing.T, m *usecase.PositionManager, fillBar int, fillPrice float64) *domain.Position {
	t.Helper()
	sig := springSignal(fillBar - 1)
	ord := &domain.Order{
		ID: "ord-1", SignalID: sig.ID, Symbol: sig.Symbol, Side: sig.Side,
		Quantity: 20, State: domain.OrderFilled,
		FillBar: fillBar, FillPrice: fillPrice,
	}
	return m.Open(ord, &sig, domain.Bar{Open: fillPrice, Close: fillPrice})
}

func TestPositionManager_StopBeatsTargetOnDoubleTouch(t *testing.T) {
	guard := usecase.NewLookAheadGuard()
	m := usecase.NewPositionManager("run", zeroCost{}, guard, 0)
	openLong(t, m, 2, 100) // stop 95, target 112

	// One bar touches both: low through the stop, high through the target.
	guard.AdvanceTo(3)
	exits := m.Update(3, domain.Bar{Open: 100, High: 113, Low: 94, Close: 100})

	if len(exits) != 1 {
		t.Fatalf("exits = %d, want 1", len(exits))
	}
	tr := exits[0]
	if tr.ExitReason != domain.ExitStop {
		t.Fatalf("exit reason = %s, want STOP (OHLC cannot order the touches)", tr.ExitReason)
	}
	if !almostEqual(tr.ExitPrice, 95) {
		t.Errorf("exit price = %v, want the stop 95", tr.ExitPrice)
	}
	if !almostEqual(tr.PnL, -100) {
		t.Errorf("pnl = %v, want -100", tr.PnL)
	}
	if !almostEqual(tr.RMultiple, -1) {
		t.Errorf("r-multiple = %v, want -1", tr.RMultiple)
	}
}

func TestPositionManager_TargetExit(t *testing.T) {
	guard := usecase.NewLookAheadGuard()
	m := usecase.NewPositionManager("run", zeroCost{}, guard, 0)
	openLong(t, m, 2, 100)

	guard.AdvanceTo(3)
	if exits := m.Update(3, domain.Bar{Open: 100, High: 111, Low: 99, Close: 110}); len(exits) != 0 {
		t.Fatalf("target 112 not reached but position exited: %+v", exits)
	}

	guard.AdvanceTo(4)
	exits := m.Update(4, domain.Bar{Open: 110, High: 112.5, Low: 108, Close: 111})
	if len(exits) != 1 || exits[0].ExitReason != domain.ExitTarget {
		t.Fatalf("exits = %+v, want one TARGET exit", exits)
	}
	if !almostEqual(exits[0].ExitPrice, 112) {
		t.Errorf("exit at %v, want the target 112", exits[0].ExitPrice)
	}
	if !almostEqual(exits[0].RMultiple, 2.4) {
		t.Errorf("r-multiple = %v, want 2.4", exits[0].RMultiple)
	}
}

func TestPositionManager_ShortStopOnHigh(t *testing.T) {
	guard := usecase.NewLookAheadGuard()
	m := usecase.NewPositionManager("run", zeroCost{}, guard, 0)

	sig := springSignal(1)
	sig.Pattern = domain.PatternUTAD
	sig.Side = domain.SideShort
	sig.Stop = 105
	sig.Target = 85
	ord := &domain.Order{
		ID: "ord-s", SignalID: sig.ID, Symbol: sig.Symbol, Side: sig.Side,
		Quantity: 10, State: domain.OrderFilled, FillBar: 2, FillPrice: 100,
	}
	m.Open(ord, &sig, domain.Bar{Open: 100, Close: 100})

	// A low below the short's target must not trip the stop check; the
	// stop is tested against the high.
	guard.AdvanceTo(3)
	exits := m.Update(3, domain.Bar{Open: 100, High: 104, Low: 99, Close: 100})
	if len(exits) != 0 {
		t.Fatalf("high 104 below stop 105 but position exited: %+v", exits)
	}

	guard.AdvanceTo(4)
	exits = m.Update(4, domain.Bar{Open: 100, High: 105.5, Low: 99, Close: 104})
	if len(exits) != 1 || exits[0].ExitReason != domain.ExitStop {
		t.Fatalf("exits = %+v, want one STOP exit on the high", exits)
	}
	if !almostEqual(exits[0].PnL, -50) {
		t.Errorf("short stop pnl = %v, want -50", exits[0].PnL)
	}
}

func TestPositionManager_TimeoutExitAtClose(t *testing.T) {
	guard := usecase.NewLookAheadGuard()
	m := usecase.NewPositionManager("run", zeroCost{}, guard, 3)
	openLong(t, m, 2, 100)

	for idx := 3; idx <= 4; idx++ {
		guard.AdvanceTo(idx)
		if exits := m.Update(idx, domain.Bar{Open: 100, High: 101, Low: 99, Close: 100.5}); len(exits) != 0 {
			t.Fatalf("bar %d: exited before max hold: %+v", idx, exits)
		}
	}

	guard.AdvanceTo(5)
	exits := m.Update(5, domain.Bar{Open: 100, High: 101, Low: 99, Close: 101})
	if len(exits) != 1 || exits[0].ExitReason != domain.ExitTimeout {
		t.Fatalf("exits = %+v, want one TIMEOUT exit at bar 5", exits)
	}
	if !almostEqual(exits[0].ExitPrice, 101) {
		t.Errorf("timeout exits at %v, want the close 101", exits[0].ExitPrice)
	}
}

func TestPositionManager_RiskAggregates(t *testing.T) {
	guard := usecase.NewLookAheadGuard()
	m := usecase.NewPositionManager("run", zeroCost{}, guard, 0)

	sig := springSignal(1)
	sig.CampaignID = "acc-1"
	sig.CorrelationGroup = "tech"
	ord := &domain.Order{
		ID: "ord-1", SignalID: sig.ID, Symbol: sig.Symbol, Side: sig.Side,
		Quantity: 20, State: domain.OrderFilled, FillBar: 2, FillPrice: 100,
	}
	m.Open(ord, &sig, domain.Bar{Open: 100, Close: 100})

	// Risk per unit 5, quantity 20: 100.00 of open risk.
	if got := m.PortfolioHeat(); got != domain.CentsFromFloat(100) {
		t.Errorf("heat = %d, want %d", got, domain.CentsFromFloat(100))
	}
	if got := m.CampaignRisk("acc-1"); got != domain.CentsFromFloat(100) {
		t.Errorf("campaign risk = %d, want %d", got, domain.CentsFromFloat(100))
	}
	if got := m.CampaignRisk("other"); got != 0 {
		t.Errorf("unrelated campaign risk = %d, want 0", got)
	}
	if got := m.CorrelatedRisk("tech"); got != domain.CentsFromFloat(100) {
		t.Errorf("correlated risk = %d, want %d", got, domain.CentsFromFloat(100))
	}
	if got := m.SymbolExposure("AAPL"); got != domain.CentsFromFloat(2000) {
		t.Errorf("exposure = %d, want %d", got, domain.CentsFromFloat(2000))
	}
}
