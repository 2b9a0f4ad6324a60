package usecase

import (
	"math"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// ConfidenceFloor is the eligibility check every signal passes before the
// risk pipeline. The floor is uniform across pattern types.
const ConfidenceFloor = 70

// ConfidencePolicy resolves a signal's effective confidence score.
//
// The base score comes from the pattern detector, or is derived from the
// volume ratio when the detector emitted none. There is no placeholder
// default: a signal with neither source is rejected for insufficient
// evidence. The session penalty is added before the floor comparison and
// the combined value is truncated, not rounded, so boundary cases fall on
// the side of rejection.
type ConfidencePolicy struct {
	// SessionPenalties maps session labels to additive adjustments,
	// typically negative for thin sessions.
	SessionPenalties map[string]float64
}

func NewConfidencePolicy() *ConfidencePolicy {
	return &ConfidencePolicy{
		SessionPenalties: map[string]float64{
			"overnight":     -15,
			"low_liquidity": -10,
			"premarket":     -10,
		},
	}
}

// Score returns the truncated effective confidence and whether the signal
// clears the floor. A score of exactly ConfidenceFloor passes.
func (p *ConfidencePolicy) Score(sig *domain.Signal) (int, bool, string) {
	base, ok := baseConfidence(sig)
	if !ok {
		return 0, false, "insufficient evidence: no detector confidence and no volume ratio"
	}

	penalty := 0.0
	if p.SessionPenalties != nil {
		penalty = p.SessionPenalties[sig.Session]
	}

	score := int(math.Trunc(base + penalty))
	if score < ConfidenceFloor {
		return score, false, "confidence below floor"
	}
	return score, true, ""
}

// baseConfidence prefers the detector's own score and falls back to a
// volume-derived one: average volume (ratio 1.0) maps to 50 and each 0.1 of
// ratio adds 5 points, clamped to [0,100].
func baseConfidence(sig *domain.Signal) (float64, bool) {
	if sig.Confidence > 0 {
		return sig.Confidence, true
	}
	if sig.VolumeRatio > 0 {
		derived := 50 + (sig.VolumeRatio-1)*50
		if derived < 0 {
			derived = 0
		}
		if derived > 100 {
			derived = 100
		}
		return derived, true
	}
	return 0, false
}
