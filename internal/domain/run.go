package domain

import "time"

type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	// RunTimeout is terminal but not a failure: the run carries whatever
	// trades and metrics were computable before the deadline.
	RunTimeout   RunStatus = "TIMEOUT"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether a run in this status will never change again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunTimeout, RunCancelled:
		return true
	}
	return false
}

// WalkForwardConfig sizes the train/validation windows. TrainBars and
// ValidationBars are per pair; PairCount pairs must tile the dataset
// exactly, which is validated at submission.
type WalkForwardConfig struct {
	Enabled        bool `yaml:"enabled" json:"enabled"`
	PairCount      int  `yaml:"pair_count" json:"pair_count"`
	TrainBars      int  `yaml:"train_bars" json:"train_bars"`
	ValidationBars int  `yaml:"validation_bars" json:"validation_bars"`
}

// RunConfig is the parameter snapshot of one backtest run, persisted with
// the run so results are reproducible.
type RunConfig struct {
	Symbol        string  `yaml:"symbol" json:"symbol"`
	Timeframe     string  `yaml:"timeframe" json:"timeframe"`
	InitialEquity float64 `yaml:"initial_equity" json:"initial_equity"`

	// Cost model.
	SpreadBps         float64 `yaml:"spread_bps" json:"spread_bps"`
	ImpactCoeff       float64 `yaml:"impact_coeff" json:"impact_coeff"`
	CommissionFlat    float64 `yaml:"commission_flat" json:"commission_flat"`
	CommissionPerUnit float64 `yaml:"commission_per_unit" json:"commission_per_unit"`

	// Order handling.
	FillWindowBars  int `yaml:"fill_window_bars" json:"fill_window_bars"` // pending order expiry
	MaxHoldBars     int `yaml:"max_hold_bars" json:"max_hold_bars"`       // position timeout exit, 0 = none
	GapToleranceBar int `yaml:"gap_tolerance_bars" json:"gap_tolerance_bars"`

	// Risk caps, percentages of equity.
	RiskPerTradePct     float64 `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`           // sizing budget, default 1.0
	MaxPatternRiskPct   float64 `yaml:"max_pattern_risk_pct" json:"max_pattern_risk_pct"`       // default 2.0
	MaxConcentrationPct float64 `yaml:"max_concentration_pct" json:"max_concentration_pct"`     // default 20.0
	MaxPortfolioHeatPct float64 `yaml:"max_portfolio_heat_pct" json:"max_portfolio_heat_pct"`   // default 10.0
	MaxCampaignRiskPct  float64 `yaml:"max_campaign_risk_pct" json:"max_campaign_risk_pct"`     // default 5.0
	MaxCorrelatedPct    float64 `yaml:"max_correlated_risk_pct" json:"max_correlated_risk_pct"` // default 6.0

	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	WalkForward WalkForwardConfig `yaml:"walk_forward" json:"walk_forward"`
}

// ApplyDefaults fills zero-valued knobs with the engine defaults.
func (c *RunConfig) ApplyDefaults() {
	if c.InitialEquity <= 0 {
		c.InitialEquity = 100000
	}
	if c.SpreadBps <= 0 {
		c.SpreadBps = 2
	}
	if c.ImpactCoeff < 0 {
		c.ImpactCoeff = 0
	}
	if c.FillWindowBars <= 0 {
		c.FillWindowBars = 3
	}
	if c.GapToleranceBar <= 0 {
		c.GapToleranceBar = 4
	}
	if c.RiskPerTradePct <= 0 {
		c.RiskPerTradePct = 1.0
	}
	if c.MaxPatternRiskPct <= 0 {
		c.MaxPatternRiskPct = 2.0
	}
	if c.MaxConcentrationPct <= 0 {
		c.MaxConcentrationPct = 20.0
	}
	if c.MaxPortfolioHeatPct <= 0 {
		c.MaxPortfolioHeatPct = 10.0
	}
	if c.MaxCampaignRiskPct <= 0 {
		c.MaxCampaignRiskPct = 5.0
	}
	if c.MaxCorrelatedPct <= 0 {
		c.MaxCorrelatedPct = 6.0
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
}

// WindowRole marks a walk-forward window as in-sample or out-of-sample.
type WindowRole string

const (
	RoleTraining   WindowRole = "TRAINING"
	RoleValidation WindowRole = "VALIDATION"
)

// WalkForwardWindow is a half-open [Start, End) bar range. The full window
// set partitions the dataset: pairwise disjoint, union covers every bar.
type WalkForwardWindow struct {
	Index int        `json:"index"`
	Role  WindowRole `json:"role"`
	Start int        `json:"start"` // inclusive
	End   int        `json:"end"`   // exclusive
}

func (w WalkForwardWindow) Len() int { return w.End - w.Start }

// WindowResult is the outcome of one independently simulated window.
type WindowResult struct {
	Window     WalkForwardWindow `json:"window"`
	TradeCount int               `json:"trade_count"`
	Return     float64           `json:"return"` // fractional return over the window
	Metrics    Metrics           `json:"metrics"`
}

// WalkForwardSummary aggregates window results into the stability and
// degradation diagnostics walk-forward analysis exists for.
type WalkForwardSummary struct {
	Windows          []WindowResult `json:"windows"`
	StabilityScore   float64        `json:"stability_score"`   // 1/(1+dispersion) of validation returns, in (0,1]
	TrainingMean     float64        `json:"training_mean"`     // mean training-window return
	ValidationMean   float64        `json:"validation_mean"`   // mean validation-window return
	DegradationRatio float64        `json:"degradation_ratio"` // validation mean / training mean
	Degraded         bool           `json:"degraded"`
	TStat            float64        `json:"t_stat"` // validation returns vs zero
}

// BacktestRun is the top-level aggregate. Created at submission, mutated
// only by the owning coordinator task, terminal once Status leaves RUNNING.
type BacktestRun struct {
	ID        string    `json:"id"`
	Config    RunConfig `json:"config"`
	Status    RunStatus `json:"status"`
	Message   string    `json:"message,omitempty"` // progress note or failure reason
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	Metrics     *Metrics            `json:"metrics,omitempty"`
	WalkForward *WalkForwardSummary `json:"walk_forward,omitempty"`
	TradeCount  int                 `json:"trade_count"`
	Rejections  int                 `json:"rejections"`
}

// RejectionRecord is one risk-pipeline rejection, aggregated into the
// run's rejection log. Expected and non-fatal.
type RejectionRecord struct {
	RunID    string `json:"run_id"`
	SignalID string `json:"signal_id"`
	Stage    int    `json:"stage"`
	Reason   string `json:"reason"`
	Bar      int    `json:"bar"`
}
