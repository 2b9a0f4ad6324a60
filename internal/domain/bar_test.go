package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

func hourlyBars(n int) []domain.Bar {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Time: t0.Add(time.Duration(i) * time.Hour),
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	return bars
}

func TestCheckGaps_Contiguous(t *testing.T) {
	if err := domain.CheckGaps(hourlyBars(24), "1h", 1); err != nil {
		t.Fatalf("contiguous stream flagged: %v", err)
	}
}

func TestCheckGaps_MissingBars(t *testing.T) {
	bars := hourlyBars(10)
	// Punch a 5-hour hole after bar 4.
	for i := 5; i < len(bars); i++ {
		bars[i].Time = bars[i].Time.Add(5 * time.Hour)
	}

	err := domain.CheckGaps(bars, "1h", 4)
	var gap *domain.DataGapError
	if !errors.As(err, &gap) {
		t.Fatalf("expected DataGapError, got %v", err)
	}
	if !gap.From.Equal(bars[4].Time) || !gap.To.Equal(bars[5].Time) {
		t.Errorf("gap range [%s, %s], want [%s, %s]", gap.From, gap.To, bars[4].Time, bars[5].Time)
	}
}

func TestCheckGaps_ToleranceAbsorbsSmallHoles(t *testing.T) {
	bars := hourlyBars(10)
	for i := 5; i < len(bars); i++ {
		bars[i].Time = bars[i].Time.Add(2 * time.Hour)
	}

	if err := domain.CheckGaps(bars, "1h", 4); err != nil {
		t.Fatalf("3-bar delta within tolerance 4 flagged: %v", err)
	}
	if err := domain.CheckGaps(bars, "1h", 2); err == nil {
		t.Fatal("3-bar delta with tolerance 2 not flagged")
	}
}

func TestCheckGaps_OutOfOrder(t *testing.T) {
	bars := hourlyBars(5)
	bars[3].Time = bars[1].Time

	var gap *domain.DataGapError
	if err := domain.CheckGaps(bars, "1h", 1); !errors.As(err, &gap) {
		t.Fatalf("expected DataGapError for out-of-order bars, got %v", err)
	}
}

func TestTimeframeDuration(t *testing.T) {
	if d, err := domain.TimeframeDuration("4h"); err != nil || d != 4*time.Hour {
		t.Errorf("4h = %v, %v", d, err)
	}
	var cfgErr *domain.ConfigurationError
	if _, err := domain.TimeframeDuration("2h"); !errors.As(err, &cfgErr) {
		t.Errorf("unknown timeframe must be a ConfigurationError, got %v", err)
	}
}
