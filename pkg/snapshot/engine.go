package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/storage"
	"github.com/wardctl/ward/pkg/usage"
)

// Engine drives the three §4.E phases for one tenant: aggregation, baseline
// computation, and anomaly detection. It holds no per-request state — every
// method takes the scope the maintenance orchestrator (or an on-demand
// recompute handler) began.
type Engine struct {
	usageDriver *usage.Driver
	store       *Store
	thresholdPct float64
	baselineSamples int
}

// New builds an Engine. thresholdPct is the anomaly threshold (default 50);
// baselineSamples is stored but not read by any method — RecomputeBaseline
// takes its sample count from the window it is given.
func New(usageDriver *usage.Driver, store *Store, thresholdPct float64, baselineSamples int) *Engine {
	return &Engine{usageDriver: usageDriver, store: store, thresholdPct: thresholdPct, baselineSamples: baselineSamples}
}

// Aggregate computes the tenant-level SnapshotAggregate for
// [periodStart, periodEnd) and records it under a CostSnapshot. Re-running
// for the same (type, periodStart) converges: the underlying usage data is
// append-only and the upsert simply bumps the snapshot's version.
func (e *Engine) Aggregate(ctx context.Context, scope *storage.Scope, snapType Type, periodStart, periodEnd time.Time) (*CostSnapshot, error) {
	start := time.Now()

	snap := &CostSnapshot{Type: snapType, PeriodStart: periodStart, PeriodEnd: periodEnd, Status: StatusRunning}
	if err := e.store.UpsertSnapshot(ctx, scope, snap); err != nil {
		return nil, err
	}
	// A re-run reuses the snapshot id; clear its earlier aggregates so they
	// are replaced rather than duplicated.
	if _, err := scope.Tx().Exec(ctx, `DELETE FROM cost_snapshot_aggregates WHERE snapshot_id = $1`, snap.ID); err != nil {
		return nil, storage.Classify(err)
	}

	perIntegration, err := e.usageDriver.FetchPerIntegrationUsage(ctx, scope, periodStart, periodEnd)
	if err != nil {
		snap.Status = StatusFailed
		snap.ErrorMessage = err.Error()
		_ = e.store.UpsertSnapshot(ctx, scope, snap)
		return snap, err
	}

	var totalCost, totalTokens, totalCalls int64
	for integrationID, summary := range perIntegration {
		agg := SnapshotAggregate{
			SnapshotID:     snap.ID,
			EntityType:     EntityFeature, // integrations are modeled as the "feature" granularity
			EntityID:       integrationID.String(),
			TotalCostCents: summary.TotalCostCents,
			TotalTokens:    summary.TotalTokensIn + summary.TotalTokensOut,
			RequestCount:   summary.CallCount,
		}
		if err := e.store.InsertAggregate(ctx, scope, agg); err != nil {
			return nil, err
		}
		totalCost += summary.TotalCostCents
		totalTokens += agg.TotalTokens
		totalCalls += summary.CallCount
	}

	tenantAgg := SnapshotAggregate{
		SnapshotID:     snap.ID,
		EntityType:     EntityTenant,
		EntityID:       "",
		TotalCostCents: totalCost,
		TotalTokens:    totalTokens,
		RequestCount:   totalCalls,
	}
	if err := e.store.InsertAggregate(ctx, scope, tenantAgg); err != nil {
		return nil, err
	}

	snap.Status = StatusComplete
	snap.RecordsProcessed = totalCalls
	snap.ComputationMs = time.Since(start).Milliseconds()
	completedAt := time.Now().UTC()
	snap.CompletedAt = &completedAt
	if err := e.store.UpsertSnapshot(ctx, scope, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecomputeBaseline pulls the trailing daily totals for one entity and
// writes a fresh current Baseline for window.
func (e *Engine) RecomputeBaseline(ctx context.Context, scope *storage.Scope, entityType EntityType, entityID string, window WindowDays, now time.Time) (*Baseline, error) {
	samples, err := e.store.RecentDailyCosts(ctx, scope, entityType, entityID, int(window))
	if err != nil {
		return nil, err
	}
	b := ComputeBaseline(entityType, entityID, window, samples, now)
	if err := e.store.WriteBaseline(ctx, scope, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DetectAnomalies evaluates every aggregate of the given snapshot against
// its entity's current 7-day baseline, recording an AnomalyEvaluation (and
// an Anomaly, if triggered) for each. Entities with no baseline yet, or a
// baseline whose mean is not positive, are skipped — there is nothing
// meaningful to deviate from.
func (e *Engine) DetectAnomalies(ctx context.Context, scope *storage.Scope, snapshotID uuid.UUID, aggregates []SnapshotAggregate, now time.Time) ([]Anomaly, error) {
	var anomalies []Anomaly
	for _, agg := range aggregates {
		baseline, err := e.store.CurrentBaseline(ctx, scope, agg.EntityType, agg.EntityID, Window7d)
		if err != nil {
			return anomalies, err
		}
		if baseline == nil || baseline.AvgDailyCost <= 0 {
			continue
		}

		eval, anomaly := Evaluate(snapshotID, agg.EntityType, agg.EntityID, float64(agg.TotalCostCents), baseline.AvgDailyCost, e.thresholdPct, now)
		if err := e.store.InsertEvaluation(ctx, scope, eval, anomaly); err != nil {
			return anomalies, err
		}
		if anomaly != nil {
			anomalies = append(anomalies, *anomaly)
		}
	}
	return anomalies, nil
}
