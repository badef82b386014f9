package snapshot

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// severityBands expresses severity as a multiple of the configured
// threshold — a self-defined scheme (§4.E's open question leaves the exact
// bands unspecified): crossing the threshold at all is low, twice the
// threshold is medium, four times is high, eight times or more is critical.
// Monotonic in the deviation magnitude, independent of the absolute percent
// so a tenant with a stricter threshold_pct still gets the same band shape.
func severityFor(deviationPct, thresholdPct float64) Severity {
	magnitude := math.Abs(deviationPct)
	switch {
	case magnitude >= thresholdPct*8:
		return SeverityCritical
	case magnitude >= thresholdPct*4:
		return SeverityHigh
	case magnitude >= thresholdPct*2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Evaluate computes deviation_pct = (current - baseline7d) / baseline7d * 100
// and decides whether it crosses thresholdPct, returning the always-recorded
// AnomalyEvaluation and, only when triggered, a non-nil Anomaly (§4.E:
// "evaluation records every threshold check; anomaly rows are the subset
// that fired"). baseline7d <= 0 means no usable baseline exists yet — the
// caller should skip evaluation entirely rather than calling this with it.
func Evaluate(snapshotID uuid.UUID, entityType EntityType, entityID string, current, baseline7d, thresholdPct float64, now time.Time) (AnomalyEvaluation, *Anomaly) {
	deviationPct := (current - baseline7d) / baseline7d * 100

	eval := AnomalyEvaluation{
		ID:           uuid.New(),
		SnapshotID:   snapshotID,
		EntityType:   entityType,
		EntityID:     entityID,
		CurrentValue: current,
		Baseline7d:   baseline7d,
		DeviationPct: deviationPct,
		ThresholdPct: thresholdPct,
		Triggered:    math.Abs(deviationPct) >= thresholdPct,
		EvaluatedAt:  now,
	}

	if !eval.Triggered {
		return eval, nil
	}

	return eval, &Anomaly{
		ID:           uuid.New(),
		EvaluationID: eval.ID,
		SnapshotID:   snapshotID,
		EntityType:   entityType,
		EntityID:     entityID,
		DeviationPct: deviationPct,
		Severity:     severityFor(deviationPct, thresholdPct),
		DetectedAt:   now,
	}
}
