package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wardctl/ward/pkg/storage"
)

// Store persists CostSnapshot/SnapshotAggregate/Baseline/AnomalyEvaluation/
// Anomaly rows, all scoped to the tenant schema the caller's transaction is
// bound to.
type Store struct{}

func NewStore() *Store { return &Store{} }

// UpsertSnapshot writes or re-versions a CostSnapshot for
// (type, period_start). Re-insertion bumps version rather than erroring.
func (s *Store) UpsertSnapshot(ctx context.Context, scope *storage.Scope, snap *CostSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	err := scope.Tx().QueryRow(ctx, `
		INSERT INTO cost_snapshots
			(id, type, period_start, period_end, status, version, records_processed, computation_ms, completed_at, error_message)
		VALUES ($1,$2,$3,$4,$5,1,$6,$7,$8,$9)
		ON CONFLICT (type, period_start) DO UPDATE SET
			status = EXCLUDED.status,
			version = cost_snapshots.version + 1,
			records_processed = EXCLUDED.records_processed,
			computation_ms = EXCLUDED.computation_ms,
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message
		RETURNING id, version
	`, snap.ID, snap.Type, snap.PeriodStart, snap.PeriodEnd, snap.Status,
		snap.RecordsProcessed, snap.ComputationMs, snap.CompletedAt, snap.ErrorMessage,
	).Scan(&snap.ID, &snap.Version)
	return storage.Classify(err)
}

// InsertAggregate writes one SnapshotAggregate row.
func (s *Store) InsertAggregate(ctx context.Context, scope *storage.Scope, a SnapshotAggregate) error {
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO cost_snapshot_aggregates
			(snapshot_id, entity_type, entity_id, total_cost_cents, total_tokens, request_count,
			 baseline_7d, baseline_30d, deviation_7d_pct)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.SnapshotID, a.EntityType, a.EntityID, a.TotalCostCents, a.TotalTokens, a.RequestCount,
		a.Baseline7d, a.Baseline30d, a.Deviation7dPct)
	return storage.Classify(err)
}

// RecentDailyCosts returns the last n complete daily totals for an entity,
// oldest first — the raw material ComputeBaseline consumes.
func (s *Store) RecentDailyCosts(ctx context.Context, scope *storage.Scope, entityType EntityType, entityID string, n int) ([]float64, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT a.total_cost_cents
		FROM cost_snapshot_aggregates a
		JOIN cost_snapshots s ON s.id = a.snapshot_id
		WHERE s.type = $1 AND s.status = $2 AND a.entity_type = $3 AND a.entity_id = $4
		ORDER BY s.period_start DESC
		LIMIT $5
	`, TypeDaily, StatusComplete, entityType, entityID, n)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var cents int64
		if err := rows.Scan(&cents); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, float64(cents))
	}
	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, storage.Classify(rows.Err())
}

// WriteBaseline flips the previous current baseline to false and inserts the
// new one, in the same scope, so a reader never observes zero or two
// current rows for the same (entity, window).
func (s *Store) WriteBaseline(ctx context.Context, scope *storage.Scope, b *Baseline) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, err := scope.Tx().Exec(ctx, `
		UPDATE cost_snapshot_baselines SET is_current = false
		WHERE entity_type = $1 AND entity_id = $2 AND window_days = $3 AND is_current = true
	`, b.EntityType, b.EntityID, b.WindowDays); err != nil {
		return storage.Classify(err)
	}

	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO cost_snapshot_baselines
			(id, entity_type, entity_id, window_days, avg_daily_cost, stddev, samples_count, computed_at, valid_until, is_current)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true)
	`, b.ID, b.EntityType, b.EntityID, b.WindowDays, b.AvgDailyCost, b.StdDev, b.SamplesCount, b.ComputedAt, b.ValidUntil)
	return storage.Classify(err)
}

// CurrentBaseline fetches the is_current=true baseline for
// (entity_type, entity_id, window_days), if any.
func (s *Store) CurrentBaseline(ctx context.Context, scope *storage.Scope, entityType EntityType, entityID string, window WindowDays) (*Baseline, error) {
	var b Baseline
	b.EntityType, b.EntityID, b.WindowDays = entityType, entityID, window
	err := scope.Tx().QueryRow(ctx, `
		SELECT id, avg_daily_cost, stddev, samples_count, computed_at, valid_until
		FROM cost_snapshot_baselines
		WHERE entity_type = $1 AND entity_id = $2 AND window_days = $3 AND is_current = true
	`, entityType, entityID, window).Scan(&b.ID, &b.AvgDailyCost, &b.StdDev, &b.SamplesCount, &b.ComputedAt, &b.ValidUntil)
	if err != nil {
		if storage.IsTransient(storage.Classify(err)) {
			return nil, storage.Classify(err)
		}
		return nil, nil // not found: no current baseline yet
	}
	b.IsCurrent = true
	return &b, nil
}

// GetSnapshot fetches a single CostSnapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, scope *storage.Scope, id uuid.UUID) (*CostSnapshot, error) {
	var snap CostSnapshot
	err := scope.Tx().QueryRow(ctx, `
		SELECT id, type, period_start, period_end, status, version, records_processed, computation_ms, completed_at, error_message
		FROM cost_snapshots
		WHERE id = $1
	`, id).Scan(&snap.ID, &snap.Type, &snap.PeriodStart, &snap.PeriodEnd, &snap.Status, &snap.Version,
		&snap.RecordsProcessed, &snap.ComputationMs, &snap.CompletedAt, &snap.ErrorMessage)
	if err != nil {
		return nil, storage.Classify(err)
	}
	return &snap, nil
}

// FindSnapshot looks up the CostSnapshot for (type, period_start), if any —
// the read side of UpsertSnapshot's unique key.
func (s *Store) FindSnapshot(ctx context.Context, scope *storage.Scope, snapType Type, periodStart time.Time) (*CostSnapshot, error) {
	var snap CostSnapshot
	err := scope.Tx().QueryRow(ctx, `
		SELECT id, type, period_start, period_end, status, version, records_processed, computation_ms, completed_at, error_message
		FROM cost_snapshots
		WHERE type = $1 AND period_start = $2
	`, snapType, periodStart).Scan(&snap.ID, &snap.Type, &snap.PeriodStart, &snap.PeriodEnd, &snap.Status, &snap.Version,
		&snap.RecordsProcessed, &snap.ComputationMs, &snap.CompletedAt, &snap.ErrorMessage)
	if err != nil {
		if storage.IsTransient(storage.Classify(err)) {
			return nil, storage.Classify(err)
		}
		return nil, nil
	}
	return &snap, nil
}

// ListAggregates returns every SnapshotAggregate row for a snapshot.
func (s *Store) ListAggregates(ctx context.Context, scope *storage.Scope, snapshotID uuid.UUID) ([]SnapshotAggregate, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT snapshot_id, entity_type, entity_id, total_cost_cents, total_tokens, request_count,
			baseline_7d, baseline_30d, deviation_7d_pct
		FROM cost_snapshot_aggregates
		WHERE snapshot_id = $1
	`, snapshotID)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []SnapshotAggregate
	for rows.Next() {
		var a SnapshotAggregate
		if err := rows.Scan(&a.SnapshotID, &a.EntityType, &a.EntityID, &a.TotalCostCents, &a.TotalTokens, &a.RequestCount,
			&a.Baseline7d, &a.Baseline30d, &a.Deviation7dPct); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, a)
	}
	return out, storage.Classify(rows.Err())
}

// ListAnomalies returns the most recently detected anomalies, optionally
// filtered to a single entity type, newest first.
func (s *Store) ListAnomalies(ctx context.Context, scope *storage.Scope, entityType EntityType, limit int) ([]Anomaly, error) {
	const baseQuery = `
		SELECT id, evaluation_id, snapshot_id, entity_type, entity_id, deviation_pct, severity, detected_at
		FROM cost_anomalies`

	var rows pgx.Rows
	var err error
	if entityType != "" {
		rows, err = scope.Tx().Query(ctx, baseQuery+` WHERE entity_type = $1 ORDER BY detected_at DESC LIMIT $2`, entityType, limit)
	} else {
		rows, err = scope.Tx().Query(ctx, baseQuery+` ORDER BY detected_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []Anomaly
	for rows.Next() {
		var a Anomaly
		if err := rows.Scan(&a.ID, &a.EvaluationID, &a.SnapshotID, &a.EntityType, &a.EntityID,
			&a.DeviationPct, &a.Severity, &a.DetectedAt); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, a)
	}
	return out, storage.Classify(rows.Err())
}

// InsertEvaluation records an AnomalyEvaluation and, if triggered, the
// corresponding Anomaly row.
func (s *Store) InsertEvaluation(ctx context.Context, scope *storage.Scope, eval AnomalyEvaluation, anomaly *Anomaly) error {
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO cost_anomaly_evaluations
			(id, snapshot_id, entity_type, entity_id, current_value, baseline_7d, deviation_pct, threshold_pct, triggered, evaluated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, eval.ID, eval.SnapshotID, eval.EntityType, eval.EntityID, eval.CurrentValue,
		eval.Baseline7d, eval.DeviationPct, eval.ThresholdPct, eval.Triggered, eval.EvaluatedAt)
	if err != nil {
		return storage.Classify(err)
	}
	if anomaly == nil {
		return nil
	}

	_, err = scope.Tx().Exec(ctx, `
		INSERT INTO cost_anomalies
			(id, evaluation_id, snapshot_id, entity_type, entity_id, deviation_pct, severity, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, anomaly.ID, anomaly.EvaluationID, anomaly.SnapshotID, anomaly.EntityType, anomaly.EntityID,
		anomaly.DeviationPct, anomaly.Severity, anomaly.DetectedAt)
	return storage.Classify(err)
}
