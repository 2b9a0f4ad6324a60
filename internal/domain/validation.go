package domain

import "fmt"

// StageResult is the tagged outcome of one risk-pipeline stage. Rejection
// is carried as data, not as an error or a panic, so the short-circuit
// invariant is visible in the control flow that threads these through.
type StageResult struct {
	Stage  int    `json:"stage"` // 1-based stage index
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

func Pass(stage int, name string) StageResult {
	return StageResult{Stage: stage, Name: name, Passed: true}
}

func Reject(stage int, name, format string, args ...any) StageResult {
	return StageResult{Stage: stage, Name: name, Reason: fmt.Sprintf(format, args...)}
}

// RiskValidationOutcome is the ordered per-stage record for one signal.
// Once a stage rejects, no later stage appears in Stages: stages that were
// never evaluated are absent, not marked failed.
type RiskValidationOutcome struct {
	SignalID string        `json:"signal_id"`
	Stages   []StageResult `json:"stages"`

	// Quantity is the position size computed by the sizing stage, valid
	// only when Accepted.
	Quantity float64 `json:"quantity,omitempty"`
}

// Accepted reports whether every evaluated stage passed.
func (o *RiskValidationOutcome) Accepted() bool {
	if len(o.Stages) == 0 {
		return false
	}
	for _, s := range o.Stages {
		if !s.Passed {
			return false
		}
	}
	return true
}

// Rejection returns the rejecting stage, if any.
func (o *RiskValidationOutcome) Rejection() (StageResult, bool) {
	for _, s := range o.Stages {
		if !s.Passed {
			return s, true
		}
	}
	return StageResult{}, false
}
