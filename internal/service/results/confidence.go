package results

import "github.com/variant-labs/variant-go/internal/domain"

// Classify maps sample size and lift magnitude to a qualitative confidence
// label. This is a heuristic UX label, not a statistical test: both the
// per-variant user count and the absolute relative lift must clear a tier's
// thresholds, evaluated from significant downward.
//
//	significant: >= 1000 users/variant and |lift| >= 10%
//	high:        >=  500 users/variant and |lift| >= 15%
//	medium:      >=  100 users/variant and |lift| >= 20%
//	low:         everything else (including < 30 users)
func Classify(minSamplePerVariant int64, liftMagnitude float64) domain.ConfidenceLevel {
	switch {
	case minSamplePerVariant >= 1000 && liftMagnitude >= 0.10:
		return domain.ConfidenceSignificant
	case minSamplePerVariant >= 500 && liftMagnitude >= 0.15:
		return domain.ConfidenceHigh
	case minSamplePerVariant >= 100 && liftMagnitude >= 0.20:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
