package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vitos/wyckoff_backtest/internal/domain"
	"github.com/vitos/wyckoff_backtest/internal/usecase"
	"go.uber.org/zap"
)

func TestBuildWindows_ExactPartition(t *testing.T) {
	cfg := domain.WalkForwardConfig{PairCount: 4, TrainBars: 180, ValidationBars: 70}
	windows, err := usecase.BuildWindows(cfg, 1000)
	require.NoError(t, err)
	require.Len(t, windows, 8)

	// Tiling: half-open, contiguous, covering [0,1000) exactly.
	offset := 0
	for i, w := range windows {
		require.Equal(t, i, w.Index)
		require.Equal(t, offset, w.Start, "window %d start", i)
		offset = w.End
		if i%2 == 0 {
			require.Equal(t, domain.RoleTraining, w.Role)
			require.Equal(t, 180, w.Len())
		} else {
			require.Equal(t, domain.RoleValidation, w.Role)
			require.Equal(t, 70, w.Len())
		}
	}
	require.Equal(t, 1000, offset)
}

func TestBuildWindows_RejectsInexactPartition(t *testing.T) {
	var cfgErr *domain.ConfigurationError

	// 2 * (300+100) = 800, dataset has 1000.
	_, err := usecase.BuildWindows(domain.WalkForwardConfig{PairCount: 2, TrainBars: 300, ValidationBars: 100}, 1000)
	require.True(t, errors.As(err, &cfgErr), "partial coverage must be a ConfigurationError, got %v", err)

	_, err = usecase.BuildWindows(domain.WalkForwardConfig{PairCount: 1, TrainBars: 750, ValidationBars: 250}, 1000)
	require.True(t, errors.As(err, &cfgErr), "single pair must be rejected, got %v", err)

	// Auto-derive needs the dataset to divide evenly.
	_, err = usecase.BuildWindows(domain.WalkForwardConfig{PairCount: 3}, 1000)
	require.True(t, errors.As(err, &cfgErr), "1000 bars into 3 pairs, got %v", err)
}

func TestBuildWindows_AutoDerivesThreeToOneSplit(t *testing.T) {
	windows, err := usecase.BuildWindows(domain.WalkForwardConfig{PairCount: 4}, 1000)
	require.NoError(t, err)
	require.Len(t, windows, 8)
	require.Equal(t, 187, windows[0].Len())
	require.Equal(t, 63, windows[1].Len())
	require.Equal(t, 1000, windows[7].End)
}

func TestWalkForward_RunsEachWindowIndependently(t *testing.T) {
	// 240 bars, 2 pairs of 90+30. A signal in each window; the one in
	// window 2 gets stopped out while the one in window 0 runs to data end,
	// so window results must differ.
	bars := flatBars(240)
	bars[150].Low = 94

	sigA := springSignal(10) // window 0 (training, [0,90))
	sigA.ID = "sig-a"
	sigB := springSignal(147) // window 2 (training, [120,210))
	sigB.ID = "sig-b"

	cfg := simConfig()
	cfg.WalkForward = domain.WalkForwardConfig{Enabled: true, PairCount: 2, TrainBars: 90, ValidationBars: 30}

	wf := usecase.NewWalkForwardEngine(usecase.NewEngine(zap.NewNop()), zap.NewNop(), 2)
	summary, err := wf.Run(context.Background(), "run", cfg, bars, []domain.Signal{sigA, sigB}, nil)
	require.NoError(t, err)
	require.Len(t, summary.Windows, 4)

	// Results are ordered by window index and carry real per-window trades.
	require.Equal(t, 1, summary.Windows[0].TradeCount, "window 0 should trade sig-a")
	require.Equal(t, 0, summary.Windows[1].TradeCount, "validation window 1 has no signals")
	require.Equal(t, 1, summary.Windows[2].TradeCount, "window 2 should trade sig-b")
	require.NotEqual(t, summary.Windows[0].Return, summary.Windows[2].Return,
		"independent windows with different outcomes must not share a result")
	require.Less(t, summary.Windows[2].Return, 0.0, "stopped-out window must show the loss")
}

func TestWalkForward_KeepsFinishedWindowsWhenCutShort(t *testing.T) {
	bars := flatBars(240)
	cfg := simConfig()
	cfg.WalkForward = domain.WalkForwardConfig{Enabled: true, PairCount: 2, TrainBars: 90, ValidationBars: 30}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One window at a time; the sink cancels the context after the first
	// result. The finished window must already be delivered to the sink
	// and must survive into the summary alongside the context error.
	var persisted []domain.WindowResult
	wf := usecase.NewWalkForwardEngine(usecase.NewEngine(zap.NewNop()), zap.NewNop(), 1)
	summary, err := wf.Run(ctx, "run", cfg, bars, nil, func(res domain.WindowResult) {
		persisted = append(persisted, res)
		cancel()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary, "cut-short run must keep its completed windows")
	require.Len(t, persisted, 1, "the finished window is handed to the sink before the run ends")
	require.Len(t, summary.Windows, 1)
	require.Equal(t, persisted[0].Window, summary.Windows[0].Window)
}

func TestWalkForward_CancelledWindowIsNotAResult(t *testing.T) {
	bars := flatBars(240)
	cfg := simConfig()
	cfg.WalkForward = domain.WalkForwardConfig{Enabled: true, PairCount: 2, TrainBars: 90, ValidationBars: 30}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wf := usecase.NewWalkForwardEngine(usecase.NewEngine(zap.NewNop()), zap.NewNop(), 2)
	_, err := wf.Run(ctx, "run", cfg, bars, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}
