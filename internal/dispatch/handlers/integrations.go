package handlers

import (
	"context"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/pkg/integration"
	"github.com/wardctl/ward/pkg/storage"
)

func registerIntegrations(reg *dispatch.Registry, d Deps) {
	reg.Register("integrations.create", "", handleIntegrationsCreate(d))
	reg.Register("integrations.get", "", handleIntegrationsGet(d))
	reg.Register("integrations.list", "", handleIntegrationsList(d))
	reg.Register("integrations.update_limits", "", handleIntegrationsUpdateLimits(d))
	reg.Register("integrations.update_health", "", handleIntegrationsUpdateHealth(d))
	reg.Register("integrations.delete", "", handleIntegrationsDelete(d))
}

func handleIntegrationsCreate(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		providerType, derr := requireString(call.Params, "provider_type")
		if derr != nil {
			return nil, derr
		}
		name, derr := requireString(call.Params, "name")
		if derr != nil {
			return nil, derr
		}
		credRef, derr := requireString(call.Params, "credential_ref")
		if derr != nil {
			return nil, derr
		}
		if err := integration.ValidateCredentialRef(credRef); err != nil {
			return nil, dispatch.Permanent(dispatch.CodeValidationError, err.Error())
		}

		in := integration.Integration{
			ProviderType:     providerType,
			Name:             name,
			CredentialRef:    credRef,
			BudgetLimitCents: optionalInt64Ptr(call.Params, "budget_limit_cents"),
			TokenLimitMonth:  optionalInt64Ptr(call.Params, "token_limit_month"),
			RateLimitRPM:     optionalInt64Ptr(call.Params, "rate_limit_rpm"),
		}
		created, err := d.Integrations.Create(ctx, scope, in)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return created, nil
	}
}

func handleIntegrationsGet(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		id, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}
		in, err := d.Integrations.Get(ctx, scope, id)
		if err != nil {
			return nil, storeErr(err, "integration not found")
		}
		return in, nil
	}
}

func handleIntegrationsList(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		list, err := d.Integrations.List(ctx, scope)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return list, nil
	}
}

func handleIntegrationsUpdateLimits(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		id, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}
		budget := optionalInt64Ptr(call.Params, "budget_limit_cents")
		tokens := optionalInt64Ptr(call.Params, "token_limit_month")
		rate := optionalInt64Ptr(call.Params, "rate_limit_rpm")
		if err := d.Integrations.UpdateLimits(ctx, scope, id, budget, tokens, rate); err != nil {
			return nil, storeErr(err, "integration not found")
		}
		return map[string]any{"integration_id": id, "updated": true}, nil
	}
}

func handleIntegrationsUpdateHealth(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		id, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}
		status, derr := requireString(call.Params, "status")
		if derr != nil {
			return nil, derr
		}
		health, derr := requireString(call.Params, "health_state")
		if derr != nil {
			return nil, derr
		}
		message := optionalString(call.Params, "health_message")

		if err := d.Integrations.UpdateHealth(ctx, scope, id, integration.Status(status), integration.HealthState(health), message); err != nil {
			return nil, storeErr(err, "integration not found")
		}
		return map[string]any{"integration_id": id, "updated": true}, nil
	}
}

func handleIntegrationsDelete(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		id, derr := requireUUID(call.Params, "integration_id")
		if derr != nil {
			return nil, derr
		}
		if err := d.Integrations.SoftDelete(ctx, scope, id); err != nil {
			return nil, storeErr(err, "integration not found")
		}
		return map[string]any{"integration_id": id, "deleted": true}, nil
	}
}
