package handlers

import (
	"context"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/enforcement"
	"github.com/wardctl/ward/pkg/storage"
)

func registerEnforcement(reg *dispatch.Registry, d Deps) {
	reg.Register("enforcement.evaluate", "", handleEnforcementEvaluate(d))
}

func handleEnforcementEvaluate(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		integrationID, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}

		req := enforcement.Request{
			TenantID:           call.TenantID,
			IntegrationID:      integrationID,
			EstimatedCostCents: int64(optionalFloat(call.Params, "estimated_cost_cents", 0)),
			EstimatedTokens:    int64(optionalFloat(call.Params, "estimated_tokens", 0)),
		}

		decision, err := d.Enforcement.Evaluate(ctx, scope, req)
		if err != nil {
			return nil, dispatch.Transient(dispatch.CodeServiceError, "evaluating enforcement decision failed", err)
		}

		degradedLabel := "false"
		if decision.Degraded {
			degradedLabel = "true"
		}
		telemetry.EnforcementDecisionsTotal.WithLabelValues(string(decision.Result), degradedLabel).Inc()

		return decision, nil
	}
}
