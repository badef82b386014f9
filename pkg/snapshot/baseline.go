package snapshot

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ComputeBaseline derives a Baseline from the last N daily-complete
// snapshot totals: the mean, the population standard deviation, and the
// sample count. It does not compute the minimum or maximum of the samples;
// Baseline has no fields for them. samples must already be in
// chronological order; ComputeBaseline itself is order-independent but
// callers should pass only the window they mean to cover.
//
// A baseline with fewer than 3 samples is still returned — the caller must
// consult Baseline.LowConfidence() rather than rejecting it outright, since
// a brand new entity has no other basis for a baseline at all.
func ComputeBaseline(entityType EntityType, entityID string, window WindowDays, samples []float64, now time.Time) Baseline {
	n := len(samples)
	var mean float64
	for _, v := range samples {
		mean += v
	}
	if n > 0 {
		mean /= float64(n)
	}

	var variance float64
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	var stddev float64
	if n > 0 {
		stddev = math.Sqrt(variance / float64(n))
	}

	return Baseline{
		ID:           uuid.New(),
		EntityType:   entityType,
		EntityID:     entityID,
		WindowDays:   window,
		AvgDailyCost: mean,
		StdDev:       stddev,
		SamplesCount: n,
		ComputedAt:   now,
		ValidUntil:   now.Add(24 * time.Hour),
		IsCurrent:    true,
	}
}
