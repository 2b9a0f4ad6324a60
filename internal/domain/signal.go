package domain

// PatternType classifies a candidate signal. The values come from the
// external pattern engine and are treated as opaque here.
type PatternType string

const (
	PatternSpring         PatternType = "SPRING"
	PatternSOS            PatternType = "SOS"
	PatternLPS            PatternType = "LPS"
	PatternUTAD           PatternType = "UTAD"
	PatternSellingClimax  PatternType = "SELLING_CLIMAX"
	PatternAutomaticRally PatternType = "AUTOMATIC_RALLY"
)

// KnownPattern reports whether pt is one of the accepted pattern types.
func KnownPattern(pt PatternType) bool {
	switch pt {
	case PatternSpring, PatternSOS, PatternLPS, PatternUTAD,
		PatternSellingClimax, PatternAutomaticRally:
		return true
	}
	return false
}

// Phase is a Wyckoff phase label (A through E) attached to a signal by the
// pattern engine.
type Phase string

const (
	PhaseA Phase = "A"
	PhaseB Phase = "B"
	PhaseC Phase = "C"
	PhaseD Phase = "D"
	PhaseE Phase = "E"
)

// Signal is a candidate entry produced by the external pattern engine.
// Immutable once received; the engine treats it as untrusted input and runs
// the full validation pipeline against it.
type Signal struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Pattern     PatternType `json:"pattern"`
	Side        Side        `json:"side"`
	DecisionBar int         `json:"decision_bar"`

	// Confidence is 0-100 as emitted by the detector. Non-positive means
	// the detector emitted no score and it must be derived from the volume
	// ratio instead (never from a placeholder).
	Confidence  float64 `json:"confidence"`
	VolumeRatio float64 `json:"volume_ratio"` // observed volume / trailing average

	Phase           Phase   `json:"phase"`
	PhaseConfidence float64 `json:"phase_confidence"` // 0-100
	PhaseBars       int     `json:"phase_bars"`       // bars spent in Phase so far

	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`

	CampaignID       string `json:"campaign_id,omitempty"`
	CorrelationGroup string `json:"correlation_group,omitempty"`
	Session          string `json:"session,omitempty"` // trading session label, drives the confidence penalty
}
