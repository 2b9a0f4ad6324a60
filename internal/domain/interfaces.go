package domain

import "context"

// RunRepository defines storage operations for the BacktestRun aggregate.
// Writes are incremental: status, trades, window results and rejections are
// persisted as they are produced so a crash mid-run leaves an inspectable
// record.
type RunRepository interface {
	InsertRun(ctx context.Context, run *BacktestRun) error
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, message string) error
	UpdateRunResult(ctx context.Context, run *BacktestRun) error
	GetRun(ctx context.Context, id string) (*BacktestRun, error)
	ListRuns(ctx context.Context, limit int) ([]*BacktestRun, error)
}

// TradeRepository defines storage operations for the per-run trade ledger
// and rejection log.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, runID string) ([]*Trade, error)
	SaveRejection(ctx context.Context, rec *RejectionRecord) error
	ListRejections(ctx context.Context, runID string, limit int) ([]*RejectionRecord, error)
	SaveWindowResult(ctx context.Context, runID string, res *WindowResult) error
	ListWindowResults(ctx context.Context, runID string) ([]*WindowResult, error)
}

// BarSource supplies the ordered bar stream for a run. The engine consumes
// whatever it is given; acquisition, caching and provider fallback live
// behind this interface.
type BarSource interface {
	Bars(ctx context.Context, symbol, timeframe string) ([]Bar, error)
}

// SignalSource supplies the candidate signals for a bar range, produced by
// the external pattern engine. Signals are untrusted input.
type SignalSource interface {
	Signals(ctx context.Context, symbol string, bars []Bar) ([]Signal, error)
}

// CostModel computes the adjusted fill price and commission for a
// hypothetical order against one bar. Implementations must be pure
// functions of their inputs.
type CostModel interface {
	Cost(side Side, quantity float64, bar Bar) (fillPrice, commission float64)
}

// FillPolicy decides whether a pending order fills on a given bar and at
// what price. Injectable so divergent fill semantics cannot creep back in
// as parallel code paths.
type FillPolicy interface {
	TryFill(order *Order, barIdx int, bar Bar) (price float64, ok bool)
}
