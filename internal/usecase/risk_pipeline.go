package usecase

import (
	"math"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// RiskState exposes the open-risk aggregates of a run's position manager
// to the pipeline, all in fixed-point cents.
type RiskState interface {
	PortfolioHeat() domain.Cents
	CampaignRisk(campaignID string) domain.Cents
	CorrelatedRisk(group string) domain.Cents
	SymbolExposure(symbol string) domain.Cents
}

// Stage names in evaluation order. The order is part of the contract:
// later stages assume earlier ones passed, so reordering changes outcomes.
var stageNames = [8]string{
	"pattern risk",
	"phase prerequisites",
	"reward to risk",
	"stop distance",
	"position sizing",
	"portfolio heat",
	"campaign risk",
	"correlated risk",
}

// requiredPhase maps each pattern to the Wyckoff phase that must have been
// reached before it is tradeable. Phase A (and B that has not met its
// minimum duration) candidates are rejected here, not downstream.
var requiredPhase = map[domain.PatternType]domain.Phase{
	domain.PatternSellingClimax:  domain.PhaseB,
	domain.PatternAutomaticRally: domain.PhaseB,
	domain.PatternSpring:         domain.PhaseC,
	domain.PatternUTAD:           domain.PhaseC,
	domain.PatternSOS:            domain.PhaseD,
	domain.PatternLPS:            domain.PhaseD,
}

var phaseRank = map[domain.Phase]int{
	domain.PhaseA: 0,
	domain.PhaseB: 1,
	domain.PhaseC: 2,
	domain.PhaseD: 3,
	domain.PhaseE: 4,
}

// minPhaseBars is the minimum bar count a phase must have run before its
// patterns qualify. Early Phase B is the classic trap.
var minPhaseBars = map[domain.Phase]int{
	domain.PhaseA: 5,
	domain.PhaseB: 10,
	domain.PhaseC: 5,
	domain.PhaseD: 5,
	domain.PhaseE: 5,
}

// minRewardRisk is the pattern-specific R-multiple floor. Breakout-class
// patterns (SOS, UTAD) demand more reward per unit of risk than tests of
// support like a Spring or LPS.
var minRewardRisk = map[domain.PatternType]float64{
	domain.PatternSpring:         2.0,
	domain.PatternLPS:            2.0,
	domain.PatternSellingClimax:  2.0,
	domain.PatternAutomaticRally: 2.5,
	domain.PatternSOS:            3.0,
	domain.PatternUTAD:           3.0,
}

// maxSpringVolumeRatio: a Spring (or LPS) is a low-volume test; climactic
// volume on the shakeout bar invalidates it.
const maxSpringVolumeRatio = 0.70

// minBreakoutVolumeRatio: an SOS breakout without expanding volume is
// suspect.
const minBreakoutVolumeRatio = 1.2

const minPhaseConfidence = 70.0

// RiskPipeline is the eight-stage, short-circuiting gate every signal must
// clear before it may become an order. A rejection at any stage records
// the stage and reason and halts evaluation; no later stage runs. All
// percentage comparisons are fixed-point.
type RiskPipeline struct {
	riskPerTrade  domain.Bps
	maxPattern    domain.Bps
	minStopDist   domain.Bps
	maxStopDist   domain.Bps
	maxConcentr   domain.Bps
	maxHeat       domain.Bps
	maxCampaign   domain.Bps
	maxCorrelated domain.Bps

	// onStage, when set, is invoked at the start of each evaluated stage.
	// Tests use it to prove stages after a rejection never run.
	onStage func(stage int)
}

func NewRiskPipeline(cfg domain.RunConfig) *RiskPipeline {
	return &RiskPipeline{
		riskPerTrade:  domain.BpsFromPercent(cfg.RiskPerTradePct),
		maxPattern:    domain.BpsFromPercent(cfg.MaxPatternRiskPct),
		minStopDist:   domain.BpsFromPercent(1.0),
		maxStopDist:   domain.BpsFromPercent(10.0),
		maxConcentr:   domain.BpsFromPercent(cfg.MaxConcentrationPct),
		maxHeat:       domain.BpsFromPercent(cfg.MaxPortfolioHeatPct),
		maxCampaign:   domain.BpsFromPercent(cfg.MaxCampaignRiskPct),
		maxCorrelated: domain.BpsFromPercent(cfg.MaxCorrelatedPct),
	}
}

// SetStageHook installs the per-stage instrumentation callback.
func (p *RiskPipeline) SetStageHook(fn func(stage int)) { p.onStage = fn }

func (p *RiskPipeline) enter(stage int) {
	if p.onStage != nil {
		p.onStage(stage)
	}
}

// Validate runs the gates in order against one signal. entryPrice is the
// decision bar's close, the best estimate available without look-ahead.
// equity is the run's current equity. The outcome records only the stages
// that actually ran.
func (p *RiskPipeline) Validate(sig *domain.Signal, entryPrice, equity float64, state RiskState) domain.RiskValidationOutcome {
	out := domain.RiskValidationOutcome{SignalID: sig.ID}

	record := func(res domain.StageResult) bool {
		out.Stages = append(out.Stages, res)
		return res.Passed
	}

	equityCents := domain.CentsFromFloat(equity)

	riskPerUnit := entryPrice - sig.Stop
	if sig.Side == domain.SideShort {
		riskPerUnit = sig.Stop - entryPrice
	}

	// Stage 1: per-signal pattern risk against the 2% cap. Size is derived
	// from the per-trade risk budget, whole units only.
	p.enter(1)
	if riskPerUnit <= 0 {
		record(domain.Reject(1, stageNames[0], "stop %.4f is on the wrong side of entry %.4f", sig.Stop, entryPrice))
		return out
	}
	budget := equity * p.riskPerTrade.Percent() / 100
	quantity := math.Floor(budget / riskPerUnit)
	if quantity < 1 {
		record(domain.Reject(1, stageNames[0], "risk per unit %.4f exceeds the per-trade budget %.2f", riskPerUnit, budget))
		return out
	}
	riskCents := domain.CentsFromFloat(quantity * riskPerUnit)
	if !domain.WithinBps(riskCents, equityCents, p.maxPattern) {
		record(domain.Reject(1, stageNames[0], "pattern risk %s of equity exceeds cap %s",
			domain.RatioBps(riskCents, equityCents), p.maxPattern))
		return out
	}
	record(domain.Pass(1, stageNames[0]))

	// Stage 2: phase prerequisites, including the pattern's volume profile.
	p.enter(2)
	if !record(p.phaseGate(sig)) {
		return out
	}

	// Stage 3: pattern-specific reward-to-risk floor.
	p.enter(3)
	reward := sig.Target - entryPrice
	if sig.Side == domain.SideShort {
		reward = entryPrice - sig.Target
	}
	minRR, ok := minRewardRisk[sig.Pattern]
	if !ok {
		record(domain.Reject(3, stageNames[2], "unknown pattern %q", sig.Pattern))
		return out
	}
	if reward <= 0 {
		record(domain.Reject(3, stageNames[2], "target %.4f is on the wrong side of entry %.4f", sig.Target, entryPrice))
		return out
	}
	if rr := reward / riskPerUnit; rr < minRR {
		record(domain.Reject(3, stageNames[2], "reward/risk %.2f below %s minimum %.1f", rr, sig.Pattern, minRR))
		return out
	}
	record(domain.Pass(3, stageNames[2]))

	// Stage 4: structural stop distance inside the [1%, 10%] band. Too
	// tight means premature stop-outs, too wide means unbounded risk.
	p.enter(4)
	stopDistCents := domain.CentsFromFloat(riskPerUnit)
	entryCents := domain.CentsFromFloat(entryPrice)
	if domain.RatioBps(stopDistCents, entryCents) < p.minStopDist {
		record(domain.Reject(4, stageNames[3], "stop distance %s of entry below 1%% floor",
			domain.RatioBps(stopDistCents, entryCents)))
		return out
	}
	if !domain.WithinBps(stopDistCents, entryCents, p.maxStopDist) {
		record(domain.Reject(4, stageNames[3], "stop distance %s of entry above 10%% cap",
			domain.RatioBps(stopDistCents, entryCents)))
		return out
	}
	record(domain.Pass(4, stageNames[3]))

	// Stage 5: concentration cap on the single name, counting exposure
	// already open in it.
	p.enter(5)
	notionalCents := domain.CentsFromFloat(quantity*entryPrice) + state.SymbolExposure(sig.Symbol)
	if !domain.WithinBps(notionalCents, equityCents, p.maxConcentr) {
		record(domain.Reject(5, stageNames[4], "position %s of equity in %s exceeds concentration cap %s",
			domain.RatioBps(notionalCents, equityCents), sig.Symbol, p.maxConcentr))
		return out
	}
	record(domain.Pass(5, stageNames[4]))

	// Stage 6: portfolio heat, existing open risk plus this signal.
	p.enter(6)
	heat := state.PortfolioHeat() + riskCents
	if !domain.WithinBps(heat, equityCents, p.maxHeat) {
		record(domain.Reject(6, stageNames[5], "portfolio heat %s exceeds cap %s",
			domain.RatioBps(heat, equityCents), p.maxHeat))
		return out
	}
	record(domain.Pass(6, stageNames[5]))

	// Stage 7: campaign risk across positions sharing a campaign.
	p.enter(7)
	if sig.CampaignID != "" {
		campaign := state.CampaignRisk(sig.CampaignID) + riskCents
		if !domain.WithinBps(campaign, equityCents, p.maxCampaign) {
			record(domain.Reject(7, stageNames[6], "campaign %s risk %s exceeds cap %s",
				sig.CampaignID, domain.RatioBps(campaign, equityCents), p.maxCampaign))
			return out
		}
	}
	record(domain.Pass(7, stageNames[6]))

	// Stage 8: correlated risk across instruments in the same group.
	p.enter(8)
	if sig.CorrelationGroup != "" {
		correlated := state.CorrelatedRisk(sig.CorrelationGroup) + riskCents
		if !domain.WithinBps(correlated, equityCents, p.maxCorrelated) {
			record(domain.Reject(8, stageNames[7], "correlated group %s risk %s exceeds cap %s",
				sig.CorrelationGroup, domain.RatioBps(correlated, equityCents), p.maxCorrelated))
			return out
		}
	}
	record(domain.Pass(8, stageNames[7]))

	out.Quantity = quantity
	return out
}

func (p *RiskPipeline) phaseGate(sig *domain.Signal) domain.StageResult {
	const stage = 2
	name := stageNames[1]

	required, ok := requiredPhase[sig.Pattern]
	if !ok {
		return domain.Reject(stage, name, "unknown pattern %q", sig.Pattern)
	}
	rank, ok := phaseRank[sig.Phase]
	if !ok {
		return domain.Reject(stage, name, "unknown phase %q", sig.Phase)
	}
	if rank < phaseRank[required] {
		return domain.Reject(stage, name, "%s requires phase %s, still in %s", sig.Pattern, required, sig.Phase)
	}
	if sig.PhaseConfidence < minPhaseConfidence {
		return domain.Reject(stage, name, "phase confidence %.1f below %.0f", sig.PhaseConfidence, minPhaseConfidence)
	}
	if min := minPhaseBars[sig.Phase]; sig.PhaseBars < min {
		return domain.Reject(stage, name, "phase %s has run %d bars, needs %d", sig.Phase, sig.PhaseBars, min)
	}

	// Volume profile of the pattern itself. A Spring or LPS must test on
	// drying volume; an SOS must break out on expanding volume.
	switch sig.Pattern {
	case domain.PatternSpring, domain.PatternLPS:
		if sig.VolumeRatio >= maxSpringVolumeRatio {
			return domain.Reject(stage, name, "%s volume ratio %.2f at or above %.2f, shakeout not drying up",
				sig.Pattern, sig.VolumeRatio, maxSpringVolumeRatio)
		}
	case domain.PatternSOS, domain.PatternAutomaticRally:
		if sig.VolumeRatio < minBreakoutVolumeRatio {
			return domain.Reject(stage, name, "%s volume ratio %.2f below %.2f, breakout lacks volume",
				sig.Pattern, sig.VolumeRatio, minBreakoutVolumeRatio)
		}
	}
	return domain.Pass(stage, name)
}
