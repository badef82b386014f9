package handlers

import (
	"context"
	"time"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/snapshot"
	"github.com/wardctl/ward/pkg/storage"
)

func registerSnapshot(reg *dispatch.Registry, d Deps) {
	reg.Register("snapshot.compute", "aggregate", handleSnapshotAggregate(d))
	reg.Register("snapshot.compute", "recompute_baseline", handleSnapshotRecomputeBaseline(d))
	reg.Register("snapshot.compute", "detect_anomalies", handleSnapshotDetectAnomalies(d))
	reg.Register("snapshot.query", "get_snapshot", handleSnapshotQueryGet(d))
	reg.Register("snapshot.query", "list_anomalies", handleSnapshotQueryListAnomalies(d))
	reg.Register("snapshot.query", "current_baseline", handleSnapshotQueryCurrentBaseline(d))
}

func handleSnapshotAggregate(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		snapType := snapshot.Type(optionalString(call.Params, "type"))
		if snapType == "" {
			snapType = snapshot.TypeDaily
		}
		periodStart, derr := requireTime(call.Params, "period_start")
		if derr != nil {
			return nil, derr
		}
		periodEnd, derr := requireTime(call.Params, "period_end")
		if derr != nil {
			return nil, derr
		}

		snap, err := d.SnapshotEngine.Aggregate(ctx, scope, snapType, periodStart, periodEnd)
		if err != nil {
			return nil, dispatch.Transient(dispatch.CodeServiceError, "computing snapshot aggregate failed", err)
		}
		return snap, nil
	}
}

func handleSnapshotRecomputeBaseline(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		entityType, derr := requireString(call.Params, "entity_type")
		if derr != nil {
			return nil, derr
		}
		entityID := optionalString(call.Params, "entity_id")
		window := snapshot.WindowDays(optionalInt(call.Params, "window_days", int(snapshot.Window7d)))

		baseline, err := d.SnapshotEngine.RecomputeBaseline(ctx, scope, snapshot.EntityType(entityType), entityID, window, time.Now().UTC())
		if err != nil {
			return nil, dispatch.Transient(dispatch.CodeServiceError, "recomputing baseline failed", err)
		}
		return baseline, nil
	}
}

func handleSnapshotDetectAnomalies(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		snapshotID, derr := requireUUID(call.Params, "snapshot_id")
		if derr != nil {
			return nil, derr
		}

		aggregates, err := d.SnapshotStore.ListAggregates(ctx, scope, snapshotID)
		if err != nil {
			return nil, storeErr(err, "")
		}

		anomalies, err := d.SnapshotEngine.DetectAnomalies(ctx, scope, snapshotID, aggregates, time.Now().UTC())
		if err != nil {
			return nil, dispatch.Transient(dispatch.CodeServiceError, "detecting anomalies failed", err)
		}
		for _, a := range anomalies {
			telemetry.AnomaliesDetectedTotal.WithLabelValues(string(a.EntityType), string(a.Severity)).Inc()
		}
		return anomalies, nil
	}
}

func handleSnapshotQueryGet(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		if raw, ok := call.Params["snapshot_id"]; ok && raw != nil {
			id, derr := requireUUID(call.Params, "snapshot_id")
			if derr != nil {
				return nil, derr
			}
			snap, err := d.SnapshotStore.GetSnapshot(ctx, scope, id)
			if err != nil {
				return nil, storeErr(err, "snapshot not found")
			}
			return snap, nil
		}

		snapType := snapshot.Type(optionalString(call.Params, "type"))
		if snapType == "" {
			snapType = snapshot.TypeDaily
		}
		periodStart, derr := requireTime(call.Params, "period_start")
		if derr != nil {
			return nil, derr
		}
		snap, err := d.SnapshotStore.FindSnapshot(ctx, scope, snapType, periodStart)
		if err != nil {
			return nil, storeErr(err, "")
		}
		if snap == nil {
			return nil, dispatch.Permanent(dispatch.CodeNotFound, "no snapshot for that type and period")
		}
		return snap, nil
	}
}

func handleSnapshotQueryListAnomalies(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		entityType := snapshot.EntityType(optionalString(call.Params, "entity_type"))
		limit := optionalInt(call.Params, "limit", 50)
		anomalies, err := d.SnapshotStore.ListAnomalies(ctx, scope, entityType, limit)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return anomalies, nil
	}
}

func handleSnapshotQueryCurrentBaseline(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		entityType, derr := requireString(call.Params, "entity_type")
		if derr != nil {
			return nil, derr
		}
		entityID := optionalString(call.Params, "entity_id")
		window := snapshot.WindowDays(optionalInt(call.Params, "window_days", int(snapshot.Window7d)))

		baseline, err := d.SnapshotStore.CurrentBaseline(ctx, scope, snapshot.EntityType(entityType), entityID, window)
		if err != nil {
			return nil, storeErr(err, "")
		}
		if baseline == nil {
			return nil, dispatch.Permanent(dispatch.CodeNotFound, "no current baseline for that entity")
		}
		return baseline, nil
	}
}
