package handlers

import (
	"context"
	"time"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/incident"
	"github.com/wardctl/ward/pkg/notify"
	"github.com/wardctl/ward/pkg/storage"
)

func registerIncidents(reg *dispatch.Registry, d Deps) {
	reg.Register("incidents.write", "", handleIncidentsWrite(d))
	reg.Register("incidents.query", "get", handleIncidentsQueryGet(d))
	reg.Register("incidents.query", "list", handleIncidentsQueryList(d))
	reg.Register("incidents.acknowledge", "", handleIncidentsAcknowledge(d))
}

func handleIncidentsWrite(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		triggerType, derr := requireString(call.Params, "trigger_type")
		if derr != nil {
			return nil, derr
		}
		callID, derr := requireString(call.Params, "call_id")
		if derr != nil {
			return nil, derr
		}

		ev := incident.FailureEvent{
			TriggerType:  triggerType,
			TriggerValue: optionalString(call.Params, "trigger_value"),
			CallID:       callID,
			CostCents:    int64(optionalFloat(call.Params, "cost_cents", 0)),
			OccurredAt:   optionalTime(call.Params, "occurred_at", time.Now().UTC()),
		}

		inc, err := d.Incidents.Process(ctx, scope, ev)
		if err != nil {
			return nil, storeErr(err, "")
		}

		if inc.CallsAffected == 1 {
			telemetry.IncidentsCreatedTotal.WithLabelValues(inc.TriggerType).Inc()
			if d.Notifier != nil {
				go d.Notifier.Send(context.Background(), notificationFromIncident(call.TenantID, inc))
			}
		}

		return inc, nil
	}
}

func handleIncidentsQueryGet(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		id, derr := requireUUID(call.Params, "incident_id")
		if derr != nil {
			return nil, derr
		}
		inc, err := d.IncidentStore.Get(ctx, scope, id)
		if err != nil {
			return nil, storeErr(err, "incident not found")
		}
		return inc, nil
	}
}

func handleIncidentsQueryList(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		status := incident.Status(optionalString(call.Params, "status"))
		limit := optionalInt(call.Params, "limit", 50)
		list, err := d.IncidentStore.List(ctx, scope, status, limit)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return list, nil
	}
}

func handleIncidentsAcknowledge(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		id, derr := requireUUID(call.Params, "incident_id")
		if derr != nil {
			return nil, derr
		}

		inc, err := d.IncidentStore.Get(ctx, scope, id)
		if err != nil {
			return nil, storeErr(err, "incident not found")
		}
		if inc.Status == incident.StatusResolved {
			return nil, dispatch.Permanent(dispatch.CodeAlreadyResolved, "incident is already resolved")
		}

		inc.Status = incident.StatusAcknowledged
		if err := d.IncidentStore.Update(ctx, scope, inc); err != nil {
			return nil, storeErr(err, "")
		}
		if err := d.IncidentStore.AppendEvent(ctx, scope, incident.Event{
			IncidentID: inc.ID, EventType: incident.EventAcknowledged,
			Description: "acknowledged via incidents.acknowledge",
		}); err != nil {
			return nil, storeErr(err, "")
		}
		return inc, nil
	}
}

func notificationFromIncident(tenantID string, inc *incident.Incident) notify.Notification {
	return notify.Notification{
		Source:   "incident",
		Severity: notify.Severity(inc.Severity),
		Title:    inc.Title,
		Detail:   inc.TriggerType + ": " + inc.TriggerValue,
		TenantID: tenantID,
	}
}
