package domain_test

import (
	"testing"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

func TestBpsFromPercent_Truncates(t *testing.T) {
	tests := []struct {
		pct  float64
		want domain.Bps
	}{
		{2.0, 200},
		{2.009, 200}, // sub-bps precision drops, never rounds up
		{0.0099, 0},
		{10.0, 1000},
		{-1.5, -150},
	}
	for _, tt := range tests {
		if got := domain.BpsFromPercent(tt.pct); got != tt.want {
			t.Errorf("BpsFromPercent(%v) = %d, want %d", tt.pct, got, tt.want)
		}
	}
}

func TestWithinBps_ExactBoundary(t *testing.T) {
	equity := domain.CentsFromFloat(100000) // 10_000_000 cents
	limit := domain.Bps(200)                // 2%

	tests := []struct {
		name   string
		amount domain.Cents
		want   bool
	}{
		{"well under", domain.CentsFromFloat(1000), true},
		{"exactly at cap", domain.CentsFromFloat(2000), true},
		{"one cent over", domain.CentsFromFloat(2000) + 1, false},
		{"zero amount", 0, true},
		{"negative amount", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.WithinBps(tt.amount, equity, limit); got != tt.want {
				t.Errorf("WithinBps(%d, %d, %d) = %v, want %v", tt.amount, equity, limit, got, tt.want)
			}
		})
	}
}

func TestWithinBps_BadBase(t *testing.T) {
	if domain.WithinBps(100, 0, 200) {
		t.Error("positive amount against zero base must not pass")
	}
	if domain.WithinBps(100, -5, 200) {
		t.Error("positive amount against negative base must not pass")
	}
}

func TestRatioBps(t *testing.T) {
	equity := domain.CentsFromFloat(100000)

	if got := domain.RatioBps(domain.CentsFromFloat(1000), equity); got != 100 {
		t.Errorf("1%% ratio = %d bps, want 100", got)
	}
	// Truncation, not rounding: 1.999% is 199 bps.
	if got := domain.RatioBps(domain.CentsFromFloat(1999.99), equity); got != 199 {
		t.Errorf("1.999%% ratio = %d bps, want 199", got)
	}
	if got := domain.RatioBps(100, 0); got <= 10000 {
		t.Errorf("zero base must saturate, got %d", got)
	}
}

func TestCentsFromFloat_Truncates(t *testing.T) {
	if got := domain.CentsFromFloat(10.999); got != 1099 {
		t.Errorf("CentsFromFloat(10.999) = %d, want 1099", got)
	}
	if got := domain.CentsFromFloat(-10.999); got != -1099 {
		t.Errorf("CentsFromFloat(-10.999) = %d, want -1099", got)
	}
}
