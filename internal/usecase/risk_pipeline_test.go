package usecase_test

import (
	"testing"

	"github.com/vitos/wyckoff_backtest/internal/domain"
	"github.com/vitos/wyckoff_backtest/internal/usecase"
)

// emptyState is a RiskState with nothing open.
type emptyState struct{}

func (emptyState) PortfolioHeat() domain.Cents               { return 0 }
func (emptyState) CampaignRisk(id string) domain.Cents       { return 0 }
func (emptyState) CorrelatedRisk(group string) domain.Cents  { return 0 }
func (emptyState) SymbolExposure(symbol string) domain.Cents { return 0 }

// fixedState returns preset aggregates regardless of key.
type fixedState struct {
	heat, campaign, correlated, exposure domain.Cents
}

func (s fixedState) PortfolioHeat() domain.Cents               { return s.heat }
func (s fixedState) CampaignRisk(id string) domain.Cents       { return s.campaign }
func (s fixedState) CorrelatedRisk(group string) domain.Cents  { return s.correlated }
func (s fixedState) SymbolExposure(symbol string) domain.Cents { return s.exposure }

func TestRiskPipeline_AcceptsValidSignal(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())
	sig := springSignal(0)

	out := p.Validate(&sig, 100, 100000, emptyState{})
	if !out.Accepted() {
		rej, _ := out.Rejection()
		t.Fatalf("valid signal rejected at stage %d: %s", rej.Stage, rej.Reason)
	}
	if !almostEqual(out.Quantity, 20) {
		t.Errorf("quantity = %v, want 20 (budget 100 / risk-per-unit 5)", out.Quantity)
	}
	if len(out.Stages) != 8 {
		t.Errorf("evaluated %d stages, want all 8", len(out.Stages))
	}
}

func TestRiskPipeline_ShortCircuitStopsEvaluation(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())
	var entered []int
	p.SetStageHook(func(stage int) { entered = append(entered, stage) })

	// Fails stage 2: Spring in phase B, too early.
	sig := springSignal(0)
	sig.Phase = domain.PhaseB

	out := p.Validate(&sig, 100, 100000, emptyState{})
	if out.Accepted() {
		t.Fatal("phase-B spring accepted")
	}
	rej, _ := out.Rejection()
	if rej.Stage != 2 {
		t.Fatalf("rejected at stage %d, want 2", rej.Stage)
	}
	if len(entered) != 2 || entered[0] != 1 || entered[1] != 2 {
		t.Fatalf("stages entered = %v, want [1 2] and nothing after the rejection", entered)
	}
	// The outcome records only what ran.
	if len(out.Stages) != 2 {
		t.Fatalf("outcome carries %d stages, want 2", len(out.Stages))
	}
}

func TestRiskPipeline_VolumeGates(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())

	tests := []struct {
		name   string
		mutate func(*domain.Signal)
		accept bool
	}{
		{"spring on drying volume passes", func(s *domain.Signal) { s.VolumeRatio = 0.65 }, true},
		{"spring on heavy volume fails", func(s *domain.Signal) { s.VolumeRatio = 0.75 }, false},
		{"spring exactly at 0.70 fails", func(s *domain.Signal) { s.VolumeRatio = 0.70 }, false},
		{"sos needs expanding volume", func(s *domain.Signal) {
			s.Pattern = domain.PatternSOS
			s.Phase = domain.PhaseD
			s.VolumeRatio = 1.1
			s.Target = 116 // SOS needs 3:1
		}, false},
		{"sos on breakout volume passes", func(s *domain.Signal) {
			s.Pattern = domain.PatternSOS
			s.Phase = domain.PhaseD
			s.VolumeRatio = 1.3
			s.Target = 116
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := springSignal(0)
			tt.mutate(&sig)
			out := p.Validate(&sig, 100, 100000, emptyState{})
			if out.Accepted() != tt.accept {
				rej, _ := out.Rejection()
				t.Errorf("accepted = %v, want %v (stage %d: %s)", out.Accepted(), tt.accept, rej.Stage, rej.Reason)
			}
		})
	}
}

func TestRiskPipeline_RewardRiskFloors(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())

	// Spring needs 2:1. Risk is 5 against entry 100.
	sig := springSignal(0)
	sig.Target = 109.9 // 1.98:1
	out := p.Validate(&sig, 100, 100000, emptyState{})
	rej, rejected := out.Rejection()
	if !rejected || rej.Stage != 3 {
		t.Fatalf("1.98:1 spring: rejection = (%v, stage %d), want stage 3", rejected, rej.Stage)
	}

	sig.Target = 110 // exactly 2:1
	if out := p.Validate(&sig, 100, 100000, emptyState{}); !out.Accepted() {
		rej, _ := out.Rejection()
		t.Fatalf("exactly 2:1 spring rejected at stage %d: %s", rej.Stage, rej.Reason)
	}

	// Target on the wrong side of entry.
	sig.Target = 90
	if out := p.Validate(&sig, 100, 100000, emptyState{}); out.Accepted() {
		t.Fatal("inverted target accepted")
	}
}

func TestRiskPipeline_StopDistanceBand(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())

	tests := []struct {
		name   string
		stop   float64
		accept bool
	}{
		{"exactly 1 percent passes", 99, true},
		{"half percent too tight", 99.5, false},
		{"exactly 10 percent passes", 90, true},
		{"eleven percent too wide", 89, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := springSignal(0)
			sig.Stop = tt.stop
			// Keep reward/risk clear of the floor for every stop width.
			sig.Target = 100 + 3*(100-tt.stop)

			out := p.Validate(&sig, 100, 100000, emptyState{})
			if out.Accepted() != tt.accept {
				rej, _ := out.Rejection()
				t.Errorf("stop %v: accepted = %v, want %v (stage %d: %s)",
					tt.stop, out.Accepted(), tt.accept, rej.Stage, rej.Reason)
			}
			if rej, rejected := out.Rejection(); rejected && !tt.accept && rej.Stage != 4 {
				t.Errorf("stop %v rejected at stage %d, want 4", tt.stop, rej.Stage)
			}
		})
	}
}

func TestRiskPipeline_StopOnWrongSide(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())
	sig := springSignal(0)
	sig.Stop = 105 // above a long entry

	out := p.Validate(&sig, 100, 100000, emptyState{})
	rej, rejected := out.Rejection()
	if !rejected || rej.Stage != 1 {
		t.Fatalf("inverted stop: rejection = (%v, stage %d), want stage 1", rejected, rej.Stage)
	}
}

func TestRiskPipeline_PortfolioCaps(t *testing.T) {
	cfg := simConfig()
	p := usecase.NewRiskPipeline(cfg)
	equityCents := domain.CentsFromFloat(100000)

	// The signal itself contributes 100.00 of risk (0.1% of equity) and
	// 2000.00 of notional.
	base := springSignal(0)
	base.CampaignID = "acc-1"
	base.CorrelationGroup = "tech"

	tests := []struct {
		name      string
		state     fixedState
		wantStage int
	}{
		{"concentration counts open exposure", fixedState{exposure: domain.CentsFromFloat(19000)}, 5},
		{"portfolio heat cap", fixedState{heat: domain.CentsFromFloat(9950)}, 6},
		{"campaign risk cap", fixedState{campaign: domain.CentsFromFloat(4950)}, 7},
		{"correlated risk cap", fixedState{correlated: domain.CentsFromFloat(5950)}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := base
			out := p.Validate(&sig, 100, 100000, tt.state)
			rej, rejected := out.Rejection()
			if !rejected || rej.Stage != tt.wantStage {
				t.Fatalf("rejection = (%v, stage %d), want stage %d", rejected, rej.Stage, tt.wantStage)
			}
		})
	}

	// Sanity: exactly at a cap still passes; the comparisons are <=.
	atCap := fixedState{heat: domain.CentsFromFloat(10000) - domain.CentsFromFloat(100)}
	if !domain.WithinBps(atCap.heat+domain.CentsFromFloat(100), equityCents, domain.BpsFromPercent(cfg.MaxPortfolioHeatPct)) {
		t.Fatal("heat exactly at cap must be within the limit")
	}
	sig := base
	if out := p.Validate(&sig, 100, 100000, atCap); !out.Accepted() {
		rej, _ := out.Rejection()
		t.Fatalf("heat exactly at cap rejected at stage %d: %s", rej.Stage, rej.Reason)
	}
}

func TestRiskPipeline_PhaseGateDetails(t *testing.T) {
	p := usecase.NewRiskPipeline(simConfig())

	tests := []struct {
		name   string
		mutate func(*domain.Signal)
	}{
		{"low phase confidence", func(s *domain.Signal) { s.PhaseConfidence = 69.9 }},
		{"phase too young", func(s *domain.Signal) { s.PhaseBars = 4 }},
		{"unknown pattern", func(s *domain.Signal) { s.Pattern = "CUP_AND_HANDLE" }},
		{"unknown phase", func(s *domain.Signal) { s.Phase = "F" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := springSignal(0)
			tt.mutate(&sig)
			out := p.Validate(&sig, 100, 100000, emptyState{})
			rej, rejected := out.Rejection()
			if !rejected || rej.Stage != 2 {
				t.Fatalf("rejection = (%v, stage %d), want stage 2", rejected, rej.Stage)
			}
		})
	}

	// A later phase than required is fine: markup spring in phase D.
	sig := springSignal(0)
	sig.Phase = domain.PhaseD
	if out := p.Validate(&sig, 100, 100000, emptyState{}); !out.Accepted() {
		rej, _ := out.Rejection()
		t.Fatalf("phase-D spring rejected at stage %d: %s", rej.Stage, rej.Reason)
	}
}
