package handlers

import (
	"context"
	"time"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/storage"
	"github.com/wardctl/ward/pkg/usage"
)

func registerUsage(reg *dispatch.Registry, d Deps) {
	reg.Register("usage.ingest", "", handleUsageIngest(d))
	reg.Register("usage.ingest", "batch", handleUsageIngestBatch(d))
	reg.Register("usage.query", "summary", handleUsageQuerySummary(d))
	reg.Register("usage.query", "history", handleUsageQueryHistory(d))
}

func recordFromParams(params map[string]any) (usage.Record, *dispatch.Error) {
	integrationID, derr := requireUUID(params, "integration_id")
	if derr != nil {
		return usage.Record{}, derr
	}
	callID, derr := requireString(params, "call_id")
	if derr != nil {
		return usage.Record{}, derr
	}
	provider, derr := requireString(params, "provider")
	if derr != nil {
		return usage.Record{}, derr
	}
	model, derr := requireString(params, "model")
	if derr != nil {
		return usage.Record{}, derr
	}

	r := usage.Record{
		IntegrationID: integrationID,
		CallID:        callID,
		Provider:      provider,
		Model:         model,
		TokensIn:      int64(optionalFloat(params, "tokens_in", 0)),
		TokensOut:     int64(optionalFloat(params, "tokens_out", 0)),
		CostCents:     int64(optionalFloat(params, "cost_cents", 0)),
	}
	if s := optionalString(params, "session_id"); s != "" {
		r.SessionID = &s
	}
	if s := optionalString(params, "agent_id"); s != "" {
		r.AgentID = &s
	}
	if s := optionalString(params, "error_code"); s != "" {
		r.ErrorCode = &s
	}
	if s := optionalString(params, "error_message"); s != "" {
		r.ErrorMessage = &s
	}
	if v := optionalInt64Ptr(params, "latency_ms"); v != nil {
		r.LatencyMs = v
	}
	return r, nil
}

func handleUsageIngest(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		r, derr := recordFromParams(call.Params)
		if derr != nil {
			return nil, derr
		}
		inserted, err := d.Usage.CreateUsage(ctx, scope, r)
		if err != nil {
			telemetry.UsageRecordsIngestedTotal.WithLabelValues("error").Inc()
			return nil, storeErr(err, "")
		}
		outcome := "inserted"
		if !inserted {
			outcome = "duplicate"
		}
		telemetry.UsageRecordsIngestedTotal.WithLabelValues(outcome).Inc()
		return map[string]any{"inserted": inserted}, nil
	}
}

func handleUsageIngestBatch(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		raw, ok := call.Params["records"].([]any)
		if !ok || len(raw) == 0 {
			return nil, dispatch.Permanent(dispatch.CodeMissingParam, "records must be a non-empty array")
		}

		records := make([]usage.Record, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, dispatch.Permanent(dispatch.CodeValidationError, "records[] entries must be objects")
			}
			r, derr := recordFromParams(m)
			if derr != nil {
				return nil, derr
			}
			records = append(records, r)
		}

		inserted, err := d.Usage.CreateUsageBatch(ctx, scope, records)
		if err != nil {
			return nil, storeErr(err, "")
		}
		telemetry.UsageRecordsIngestedTotal.WithLabelValues("inserted").Add(float64(inserted))
		return map[string]any{"inserted_count": inserted, "submitted_count": len(records)}, nil
	}
}

func handleUsageQuerySummary(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		integrationID, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}
		now := time.Now().UTC()
		from := optionalTime(call.Params, "from", now.AddDate(0, -1, 0))
		to := optionalTime(call.Params, "to", now)

		summary, err := d.Usage.FetchUsageSummary(ctx, scope, integrationID, from, to)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return summary, nil
	}
}

func handleUsageQueryHistory(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		integrationID, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}
		now := time.Now().UTC()
		from := optionalTime(call.Params, "from", now.AddDate(0, 0, -7))
		to := optionalTime(call.Params, "to", now)
		limit := optionalInt(call.Params, "limit", 100)

		history, err := d.Usage.FetchUsageHistory(ctx, scope, integrationID, from, to, limit)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return history, nil
	}
}
