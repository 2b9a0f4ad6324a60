package usecase

import (
	"math"
	"time"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// MetricsFacade rolls the closed-trade ledger and equity curve of one run
// into the aggregate performance numbers. It is a pure computation over
// already-persisted data, so recomputing it is always safe and idempotent.
type MetricsFacade struct{}

func NewMetricsFacade() *MetricsFacade { return &MetricsFacade{} }

// Compute derives the full metrics set.
//
//   - Sharpe and Sortino are per-period ratios over equity-curve returns.
//     Sharpe uses sample variance (N-1); Sortino's downside deviation
//     divides by the full return count, not only the losing periods.
//   - Max drawdown is the canonical fraction in [0,1].
//   - Profit factor on zero losing trades is +Inf, the one sentinel.
//   - CAGR annualizes as (1+total_return)^(365/elapsed_days) - 1.
func (MetricsFacade) Compute(trades []domain.Trade, equityCurve []float64, initialEquity float64, start, end time.Time) domain.Metrics {
	var m domain.Metrics
	m.TotalTrades = len(trades)

	for _, t := range trades {
		m.NetProfit += t.PnL
		m.AvgRMultiple += t.RMultiple
		if t.PnL >= 0 {
			m.Wins++
			m.GrossProfit += t.PnL
		} else {
			m.Losses++
			m.GrossLoss += -t.PnL
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
		m.Expectancy = m.NetProfit / float64(m.TotalTrades)
		m.AvgRMultiple /= float64(m.TotalTrades)
	}

	m.ProfitFactor = profitFactor(m.GrossProfit, m.GrossLoss)

	if initialEquity > 0 {
		m.TotalReturn = m.NetProfit / initialEquity
	}

	returns := periodReturns(equityCurve)
	m.Sharpe = sharpe(returns)
	m.Sortino = sortino(returns)
	m.MaxDrawdown = maxDrawdown(equityCurve)
	m.CAGR = cagr(m.TotalReturn, start, end)
	return m
}

// profitFactor is gross profit over gross loss. With zero losing trades the
// ratio is mathematically undefined; the facade reports +Inf and every
// consumer reports the same sentinel, never 0 or an arbitrary large number.
func profitFactor(grossProfit, grossLoss float64) domain.InfFloat {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return domain.InfFloat(math.Inf(1))
		}
		return 0
	}
	return domain.InfFloat(grossProfit / grossLoss)
}

func periodReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// sharpe is mean/stddev of period returns with the standard deviation
// computed from sample variance: divide by N-1, not N.
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := meanOf(returns)
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(n-1))
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// sortino divides the sum of squared below-zero returns by the full count
// N. Dividing by only the number of losing periods overstates downside
// deviation exactly when losses are rare.
func sortino(returns []float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}
	mean := meanOf(returns)
	var downSS float64
	for _, r := range returns {
		if r < 0 {
			downSS += r * r
		}
	}
	dd := math.Sqrt(downSS / float64(n))
	if dd == 0 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return mean / dd
}

// maxDrawdown is the deepest peak-to-trough decline of the equity curve,
// as a fraction of the peak. Always in [0,1].
func maxDrawdown(equity []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func cagr(totalReturn float64, start, end time.Time) float64 {
	days := end.Sub(start).Hours() / 24
	if days <= 0 || totalReturn <= -1 {
		return 0
	}
	return math.Pow(1+totalReturn, 365/days) - 1
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
