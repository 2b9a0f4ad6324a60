package usecase

import (
	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// LookAheadGuard verifies that no price used to decide a fill, stop or
// target check comes from a bar later than the one being processed. The
// engine advances the cursor once per bar; every read of bar data is
// recorded against it.
type LookAheadGuard struct {
	cursor     int
	violations []domain.LookAheadError
}

func NewLookAheadGuard() *LookAheadGuard {
	return &LookAheadGuard{cursor: -1}
}

// AdvanceTo moves the guard to the bar currently being processed.
func (g *LookAheadGuard) AdvanceTo(barIdx int) {
	if barIdx > g.cursor {
		g.cursor = barIdx
	}
}

// RecordAccess notes a read of data belonging to accessedBar made while
// processing decisionBar. Reads of the current or any earlier bar are
// legitimate; anything later is a violation.
func (g *LookAheadGuard) RecordAccess(decisionBar, accessedBar int, what string) {
	if accessedBar > decisionBar || accessedBar > g.cursor {
		g.violations = append(g.violations, domain.LookAheadError{
			DecisionBar: decisionBar,
			AccessedBar: accessedBar,
			What:        what,
		})
	}
}

// StopPrice returns the bar extreme a stop check must test, direction
// aware: a long stop is touched by the low, a short stop by the high.
// The access is recorded against the guard cursor.
func (g *LookAheadGuard) StopPrice(side domain.Side, barIdx int, bar domain.Bar) float64 {
	g.RecordAccess(g.cursor, barIdx, "stop check")
	if side == domain.SideShort {
		return bar.High
	}
	return bar.Low
}

// TargetPrice is the direction-aware extreme for a target check: high for
// longs, low for shorts. Flagging both extremes identically regardless of
// direction would false-alarm on legitimate short logic.
func (g *LookAheadGuard) TargetPrice(side domain.Side, barIdx int, bar domain.Bar) float64 {
	g.RecordAccess(g.cursor, barIdx, "target check")
	if side == domain.SideShort {
		return bar.Low
	}
	return bar.High
}

// Violations returns every recorded look-ahead access. A non-empty result
// fails the run.
func (g *LookAheadGuard) Violations() []domain.LookAheadError {
	return g.violations
}

// Err returns the first violation as an error, or nil.
func (g *LookAheadGuard) Err() error {
	if len(g.violations) == 0 {
		return nil
	}
	v := g.violations[0]
	return &v
}
