package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// WalkForwardEngine partitions the bar history into train/validation
// window pairs and runs the real end-to-end simulation independently on
// every window. Reusing one window's result for another would defeat the
// whole point, which is detecting performance instability across distinct
// periods; each window gets its own engine state and its own bar slice.
type WalkForwardEngine struct {
	engine        *Engine
	logger        *zap.Logger
	maxConcurrent int
}

func NewWalkForwardEngine(engine *Engine, logger *zap.Logger, maxConcurrent int) *WalkForwardEngine {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &WalkForwardEngine{engine: engine, logger: logger, maxConcurrent: maxConcurrent}
}

// BuildWindows tiles [0, totalBars) with PairCount train/validation pairs,
// half-open, no gaps and no overlap. A configuration that cannot partition
// the dataset exactly is rejected before the run starts.
func BuildWindows(cfg domain.WalkForwardConfig, totalBars int) ([]domain.WalkForwardWindow, error) {
	if cfg.PairCount < 2 {
		return nil, &domain.ConfigurationError{Field: "walk_forward.pair_count", Detail: "need at least 2 window pairs"}
	}
	train, validation := cfg.TrainBars, cfg.ValidationBars
	if train == 0 && validation == 0 {
		if totalBars%cfg.PairCount != 0 {
			return nil, &domain.ConfigurationError{
				Field:  "walk_forward.pair_count",
				Detail: fmt.Sprintf("%d bars do not divide into %d equal pairs", totalBars, cfg.PairCount),
			}
		}
		pairLen := totalBars / cfg.PairCount
		train = pairLen * 3 / 4
		validation = pairLen - train
	}
	if train <= 0 || validation <= 0 {
		return nil, &domain.ConfigurationError{Field: "walk_forward", Detail: "train and validation windows must be non-empty"}
	}
	if cfg.PairCount*(train+validation) != totalBars {
		return nil, &domain.ConfigurationError{
			Field: "walk_forward",
			Detail: fmt.Sprintf("%d pairs of %d+%d bars cover %d, dataset has %d",
				cfg.PairCount, train, validation, cfg.PairCount*(train+validation), totalBars),
		}
	}

	windows := make([]domain.WalkForwardWindow, 0, cfg.PairCount*2)
	offset := 0
	for i := 0; i < cfg.PairCount; i++ {
		windows = append(windows,
			domain.WalkForwardWindow{Index: len(windows), Role: domain.RoleTraining, Start: offset, End: offset + train},
			domain.WalkForwardWindow{Index: len(windows) + 1, Role: domain.RoleValidation, Start: offset + train, End: offset + train + validation},
		)
		offset += train + validation
	}
	return windows, nil
}

// Run simulates every window concurrently. Windows share only the
// read-only bar data; each gets exclusive simulation state. Each finished
// window is handed to onWindow immediately, so a run cut short by its
// deadline still has every completed window persisted; in that case the
// summary of completed windows is returned together with the context
// error. Results come back ordered by window index.
func (w *WalkForwardEngine) Run(ctx context.Context, runID string, cfg domain.RunConfig, bars []domain.Bar, signals []domain.Signal, onWindow func(domain.WindowResult)) (*domain.WalkForwardSummary, error) {
	windows, err := BuildWindows(cfg.WalkForward, len(bars))
	if err != nil {
		return nil, err
	}

	results := make([]*domain.WindowResult, len(windows))
	errs := make([]error, len(windows))
	sem := make(chan struct{}, w.maxConcurrent)
	var wg sync.WaitGroup
	var sinkMu sync.Mutex // onWindow is not required to be goroutine-safe

	for i, win := range windows {
		wg.Add(1)
		go func(i int, win domain.WalkForwardWindow) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := w.runWindow(ctx, runID, cfg, bars, signals, win)
			if err != nil {
				errs[i] = fmt.Errorf("window %d [%d,%d): %w", win.Index, win.Start, win.End, err)
				return
			}
			results[i] = res
			if onWindow != nil {
				sinkMu.Lock()
				onWindow(*res)
				sinkMu.Unlock()
			}
		}(i, win)
	}
	wg.Wait()

	var ctxErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if ctxErr == nil {
				ctxErr = err
			}
			continue
		}
		return nil, err
	}

	summary := &domain.WalkForwardSummary{}
	for _, r := range results {
		if r == nil {
			continue // window cut short by the deadline
		}
		summary.Windows = append(summary.Windows, *r)
	}
	w.aggregate(summary)

	if ctxErr != nil {
		return summary, ctxErr
	}

	if w.logger != nil {
		w.logger.Info("walk-forward complete",
			zap.String("run_id", runID),
			zap.Int("windows", len(windows)),
			zap.Float64("stability", summary.StabilityScore),
			zap.Bool("degraded", summary.Degraded))
	}
	return summary, nil
}

// runWindow slices the bars and rebases the window's signals to slice-local
// indices, then runs the full simulation on that slice alone.
func (w *WalkForwardEngine) runWindow(ctx context.Context, runID string, cfg domain.RunConfig, bars []domain.Bar, signals []domain.Signal, win domain.WalkForwardWindow) (*domain.WindowResult, error) {
	slice := bars[win.Start:win.End]

	var local []domain.Signal
	for _, sig := range signals {
		if sig.DecisionBar < win.Start || sig.DecisionBar >= win.End {
			continue
		}
		rebased := sig
		rebased.DecisionBar = sig.DecisionBar - win.Start
		local = append(local, rebased)
	}

	windowID := fmt.Sprintf("%s-w%d", runID, win.Index)
	res, err := w.engine.Run(ctx, windowID, cfg, slice, local, SimSinks{})
	if err != nil {
		return nil, err
	}
	if res.Partial {
		// A half-simulated window must never masquerade as a result.
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, context.Canceled
	}
	return &domain.WindowResult{
		Window:     win,
		TradeCount: len(res.Trades),
		Return:     res.Metrics.TotalReturn,
		Metrics:    res.Metrics,
	}, nil
}

// aggregate computes the stability score, the train/validation degradation
// indicator and a one-sample t statistic of validation returns against
// zero.
func (w *WalkForwardEngine) aggregate(s *domain.WalkForwardSummary) {
	var trainReturns, valReturns []float64
	for _, r := range s.Windows {
		if r.Window.Role == domain.RoleTraining {
			trainReturns = append(trainReturns, r.Return)
		} else {
			valReturns = append(valReturns, r.Return)
		}
	}
	s.TrainingMean = meanOf(trainReturns)
	s.ValidationMean = meanOf(valReturns)

	// Stability: dispersion of validation returns mapped into (0,1],
	// where 1 means identical performance across every period.
	sd := sampleStd(valReturns)
	s.StabilityScore = 1 / (1 + sd*10)

	// Degradation: validation materially worse than training on the same
	// metric. Ratio below 0.5 (or sign inversion) counts as material.
	if s.TrainingMean != 0 {
		s.DegradationRatio = s.ValidationMean / s.TrainingMean
	}
	switch {
	case s.TrainingMean > 0 && s.ValidationMean < 0.5*s.TrainingMean:
		s.Degraded = true
	case s.TrainingMean <= 0 && s.ValidationMean < s.TrainingMean:
		s.Degraded = true
	}

	if n := len(valReturns); n >= 2 && sd > 0 {
		s.TStat = s.ValidationMean / (sd / math.Sqrt(float64(n)))
	}
}

func sampleStd(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := meanOf(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
