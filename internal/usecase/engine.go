package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// SimResult is the outcome of one simulated window or run.
type SimResult struct {
	Trades      []domain.Trade
	Rejections  []domain.RejectionRecord
	EquityCurve []float64
	Metrics     domain.Metrics

	// Partial is set when the loop stopped on cancellation or deadline;
	// Trades and Metrics cover everything executed up to that point.
	Partial bool

	BarsProcessed int
	OrdersPlaced  int
	OrdersExpired int
}

// SimSinks are optional incremental outputs. The coordinator wires them to
// the run's persistence and progress stream; nil sinks are skipped.
type SimSinks struct {
	OnTrade     func(domain.Trade)
	OnRejection func(domain.RejectionRecord)
	OnProgress  func(done, total int)
}

// Engine is the one simulation implementation behind every backtest: the
// risk pipeline, order fill semantics, position management and metrics all
// live here, with the fill policy and cost model injectable. Each Run call
// builds fresh per-run state, so concurrent runs share nothing mutable.
type Engine struct {
	fill    domain.FillPolicy
	newCost func(domain.RunConfig) domain.CostModel
	logger  *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		fill: NextBarOpenFill{},
		newCost: func(cfg domain.RunConfig) domain.CostModel {
			return NewCostModel(cfg)
		},
		logger: logger,
	}
}

// WithFillPolicy swaps the fill policy; used by tests.
func (e *Engine) WithFillPolicy(fp domain.FillPolicy) *Engine {
	e.fill = fp
	return e
}

// WithCostModel swaps the cost model factory.
func (e *Engine) WithCostModel(fn func(domain.RunConfig) domain.CostModel) *Engine {
	e.newCost = fn
	return e
}

// Run simulates one bar range end to end: confidence floor, risk pipeline,
// order simulation, position management, metrics. Cancellation is
// cooperative: the loop checks ctx between bars and stops cleanly with a
// partial result; nothing already produced is discarded.
func (e *Engine) Run(ctx context.Context, runID string, cfg domain.RunConfig, bars []domain.Bar, signals []domain.Signal, sinks SimSinks) (*SimResult, error) {
	if len(bars) == 0 {
		return nil, &domain.ConfigurationError{Field: "bars", Detail: "empty bar stream"}
	}
	if err := domain.CheckGaps(bars, cfg.Timeframe, cfg.GapToleranceBar); err != nil {
		return nil, err
	}

	guard := NewLookAheadGuard()
	cost := e.newCost(cfg)
	sim := NewOrderSimulator(cost, e.fill, guard)
	positions := NewPositionManager(runID, cost, guard, cfg.MaxHoldBars)
	pipeline := NewRiskPipeline(cfg)
	confidence := NewConfidencePolicy()

	// Signals indexed by decision bar; out-of-range ones are dropped.
	byBar := make(map[int][]*domain.Signal)
	for i := range signals {
		sig := &signals[i]
		if sig.DecisionBar < 0 || sig.DecisionBar >= len(bars) {
			continue
		}
		byBar[sig.DecisionBar] = append(byBar[sig.DecisionBar], sig)
	}

	res := &SimResult{EquityCurve: make([]float64, 0, len(bars))}
	equity := cfg.InitialEquity
	var pending []*domain.Order
	orderSignal := make(map[string]*domain.Signal)

	record := func(trades []domain.Trade) {
		for _, t := range trades {
			equity += t.PnL
			res.Trades = append(res.Trades, t)
			if sinks.OnTrade != nil {
				sinks.OnTrade(t)
			}
		}
	}

	for idx, bar := range bars {
		select {
		case <-ctx.Done():
			res.Partial = true
			res.Metrics = NewMetricsFacade().Compute(res.Trades, res.EquityCurve, cfg.InitialEquity, bars[0].Time, bar.Time)
			return res, nil
		default:
		}

		guard.AdvanceTo(idx)

		// 1. Pending orders may fill at this bar's open.
		still := pending[:0]
		for _, ord := range pending {
			if sim.Advance(ord, idx, bar) {
				positions.Open(ord, orderSignal[ord.ID], bar)
				delete(orderSignal, ord.ID)
				continue
			}
			switch ord.State {
			case domain.OrderPending:
				still = append(still, ord)
			case domain.OrderExpired:
				res.OrdersExpired++
				delete(orderSignal, ord.ID)
			}
		}
		pending = still

		// 2. Open positions see the full bar: stops on the adverse
		// extreme, targets on the favorable one, stop first on a
		// same-bar double touch.
		record(positions.Update(idx, bar))

		// 3. Decisions for signals whose decision bar just closed.
		for _, sig := range byBar[idx] {
			record(e.closeReversals(positions, sig, idx, bar))

			if _, ok, reason := confidence.Score(sig); !ok {
				rej := domain.RejectionRecord{
					RunID: runID, SignalID: sig.ID, Stage: 0,
					Reason: reason, Bar: idx,
				}
				res.Rejections = append(res.Rejections, rej)
				if sinks.OnRejection != nil {
					sinks.OnRejection(rej)
				}
				continue
			}

			guard.RecordAccess(idx, idx, "entry reference close")
			outcome := pipeline.Validate(sig, bar.Close, equity+positions.UnrealizedTotal(), positions)
			if rejection, rejected := outcome.Rejection(); rejected {
				rej := domain.RejectionRecord{
					RunID: runID, SignalID: sig.ID,
					Stage: rejection.Stage, Reason: rejection.Reason, Bar: idx,
				}
				res.Rejections = append(res.Rejections, rej)
				if sinks.OnRejection != nil {
					sinks.OnRejection(rej)
				}
				continue
			}

			ord := sim.NewOrder(sig, outcome.Quantity, cfg.FillWindowBars)
			pending = append(pending, ord)
			orderSignal[ord.ID] = sig
			res.OrdersPlaced++
		}

		res.EquityCurve = append(res.EquityCurve, equity+positions.UnrealizedTotal())
		res.BarsProcessed++

		if sinks.OnProgress != nil && (idx%256 == 0 || idx == len(bars)-1) {
			sinks.OnProgress(idx+1, len(bars))
		}
	}

	// Stream ended: pending orders expire, open positions liquidate at the
	// final close.
	for _, ord := range pending {
		sim.ExpireAtStreamEnd(ord)
		res.OrdersExpired++
	}
	last := len(bars) - 1
	record(positions.CloseAll(last, bars[last], domain.ExitEndOfData))
	res.EquityCurve[last] = equity

	if err := guard.Err(); err != nil {
		return nil, err
	}

	res.Metrics = NewMetricsFacade().Compute(res.Trades, res.EquityCurve, cfg.InitialEquity, bars[0].Time, bars[last].Time)
	if e.logger != nil {
		e.logger.Debug("simulation finished",
			zap.String("run_id", runID),
			zap.Int("bars", res.BarsProcessed),
			zap.Int("trades", len(res.Trades)),
			zap.Int("rejections", len(res.Rejections)))
	}
	return res, nil
}

// closeReversals exits open positions the new signal contradicts: an
// opposite-side signal in the same symbol is treated as the thesis ending.
func (e *Engine) closeReversals(positions *PositionManager, sig *domain.Signal, idx int, bar domain.Bar) []domain.Trade {
	var out []domain.Trade
	// Snapshot: CloseOne mutates the open set under iteration.
	open := append([]*domain.Position(nil), positions.OpenPositions()...)
	for _, pos := range open {
		if pos.Symbol == sig.Symbol && pos.Side != sig.Side {
			out = append(out, positions.CloseOne(pos, bar.Close, idx, bar, domain.ExitReversal)...)
		}
	}
	return out
}
