package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/envelope"
	"github.com/wardctl/ward/pkg/notify"
	"github.com/wardctl/ward/pkg/storage"
)

func notificationFromKillSwitch(tenantID string, ev envelope.KillSwitchEvent) notify.Notification {
	return notify.Notification{
		Source:   "kill_switch",
		Severity: notify.SeverityCritical,
		Title:    "kill switch activated",
		Detail:   fmt.Sprintf("triggered by %s: %s (%d envelopes reverted)", ev.TriggeredBy, ev.TriggerReason, ev.ActiveEnvelopesCount),
		TenantID: tenantID,
	}
}

func registerControls(reg *dispatch.Registry, d Deps) {
	reg.Register("controls.apply", "", handleControlsApply(d))
	reg.Register("controls.revert", "", handleControlsRevert(d))
	reg.Register("controls.query", "list_active", handleControlsQueryListActive(d))
	reg.Register("controls.query", "audit_trail", handleControlsQueryAuditTrail(d))
	reg.Register("controls.killswitch.read", "", handleKillSwitchRead(d))
	reg.Register("controls.killswitch.activate", "", handleKillSwitchActivate(d))
	reg.Register("controls.killswitch.rearm", "", handleKillSwitchRearm(d))
}

// envelopeRevertFunc is the Coordinator's downstream rollback hook. ward
// coordinates and durably records envelope lifecycle (§4.F) but never
// mutates a governed subsystem's runtime parameter directly — the external
// system that owns that parameter is expected to read the reverted Baseline
// back out, the same way it read the applied bound. This just logs the
// transition so that read is always backed by an audit line.
func envelopeRevertFunc(d Deps) envelope.RevertFunc {
	return func(e *envelope.Envelope, b envelope.Baseline) error {
		d.Logger.Info("envelope reverted",
			"envelope_id", e.EnvelopeID, "subsystem", e.Subsystem, "parameter", e.Parameter,
			"reason", e.RevertReason, "baseline_source", b.Source, "baseline_value", b.Value)
		return nil
	}
}

// persistNewAudit writes every CoordinationAudit record appended since
// before, the entries a single coordinator call just produced, into the
// tenant-scoped durable ledger. The Coordinator itself holds no scope — it
// is one process-wide in-memory authority (pkg/envelope/store.go) — so the
// handler is what ties an in-memory decision back to the tenant schema the
// request arrived under.
func persistNewAudit(ctx context.Context, scope *storage.Scope, d Deps, before int) *dispatch.Error {
	trail := d.Coordinator.AuditTrail()
	if len(trail) <= before {
		return nil
	}
	for _, a := range trail[before:] {
		if err := d.EnvelopeStore.InsertAudit(ctx, scope, a); err != nil {
			return storeErr(err, "")
		}
		telemetry.CoordinationDecisionsTotal.WithLabelValues(a.Decision).Inc()
	}
	return nil
}

func envelopeFromParams(params map[string]any) (*envelope.Envelope, *dispatch.Error) {
	class, derr := requireString(params, "class")
	if derr != nil {
		return nil, derr
	}
	subsystem, derr := requireString(params, "subsystem")
	if derr != nil {
		return nil, derr
	}
	parameter, derr := requireString(params, "parameter")
	if derr != nil {
		return nil, derr
	}

	boundsRaw, _ := params["bounds"].(map[string]any)
	bounds := envelope.Bounds{
		DeltaType:   optionalString(boundsRaw, "delta_type"),
		MaxIncrease: optionalFloat(boundsRaw, "max_increase", 0),
		MaxDecrease: optionalFloat(boundsRaw, "max_decrease", 0),
	}
	if v, ok := boundsRaw["absolute_ceiling"].(float64); ok {
		bounds.AbsoluteCeiling = &v
	}

	timeboxRaw, _ := params["timebox"].(map[string]any)
	timebox := envelope.Timebox{
		MaxDurationSeconds: optionalInt(timeboxRaw, "max_duration_seconds", 0),
		HardExpiry:         timeboxRaw["hard_expiry"] == true,
	}

	baselineRaw, _ := params["baseline"].(map[string]any)
	baseline := envelope.Baseline{
		Source:      optionalString(baselineRaw, "source"),
		ReferenceID: optionalString(baselineRaw, "reference_id"),
		Value:       optionalFloat(baselineRaw, "value", 0),
	}

	triggerRaw, _ := params["trigger"].(map[string]any)
	trigger := envelope.Trigger{
		PredictionType: optionalString(triggerRaw, "prediction_type"),
		MinConfidence:  optionalFloat(triggerRaw, "min_confidence", 0),
	}

	var revertOn []envelope.RevertReason
	if raw, ok := params["revert_on"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				revertOn = append(revertOn, envelope.RevertReason(s))
			}
		}
	}

	return &envelope.Envelope{
		Class:     envelope.Class(class),
		Subsystem: subsystem,
		Parameter: parameter,
		Bounds:    bounds,
		Timebox:   timebox,
		Baseline:  baseline,
		RevertOn:  revertOn,
		Trigger:   trigger,
	}, nil
}

func handleControlsApply(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		e, derr := envelopeFromParams(call.Params)
		if derr != nil {
			return nil, derr
		}

		before := len(d.Coordinator.AuditTrail())
		preemptedIDs, err := d.Coordinator.Apply(e, envelopeRevertFunc(d))
		if aerr := persistNewAudit(ctx, scope, d, before); aerr != nil {
			return nil, aerr
		}
		if err != nil {
			if d.Coordinator.KillSwitchActive() {
				return nil, dispatch.Governance(dispatch.CodeKillSwitchActive, err.Error())
			}
			return nil, dispatch.Permanent(dispatch.CodeConflict, err.Error())
		}

		return map[string]any{
			"envelope_id":   e.EnvelopeID,
			"preempted_ids": preemptedIDs,
			"lifecycle":     e.Lifecycle,
		}, nil
	}
}

func handleControlsRevert(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		envelopeID, derr := requireString(call.Params, "envelope_id")
		if derr != nil {
			return nil, derr
		}
		reason := envelope.RevertReason(optionalString(call.Params, "reason"))
		if reason == "" {
			reason = envelope.RevertManual
		}

		before := len(d.Coordinator.AuditTrail())
		if err := d.Coordinator.Revert(envelopeID, reason); err != nil {
			return nil, dispatch.Permanent(dispatch.CodeValidationError, err.Error())
		}
		if aerr := persistNewAudit(ctx, scope, d, before); aerr != nil {
			return nil, aerr
		}
		return map[string]any{"envelope_id": envelopeID, "reverted": true}, nil
	}
}

func handleControlsQueryListActive(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		return d.Coordinator.Active(), nil
	}
}

func handleControlsQueryAuditTrail(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		limit := optionalInt(call.Params, "limit", 100)
		records, err := d.EnvelopeStore.ListAudit(ctx, scope, limit)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return records, nil
	}
}

func handleKillSwitchRead(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		limit := optionalInt(call.Params, "limit", 20)
		events, err := d.EnvelopeStore.ListKillSwitchEvents(ctx, scope, limit)
		if err != nil {
			return nil, storeErr(err, "")
		}
		return map[string]any{
			"active": d.Coordinator.KillSwitchActive(),
			"events": events,
		}, nil
	}
}

func handleKillSwitchActivate(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		triggeredBy, derr := requireString(call.Params, "triggered_by")
		if derr != nil {
			return nil, derr
		}
		reason, derr := requireString(call.Params, "reason")
		if derr != nil {
			return nil, derr
		}

		before := len(d.Coordinator.AuditTrail())
		ev := d.Coordinator.ActivateKillSwitch(triggeredBy, reason)
		if aerr := persistNewAudit(ctx, scope, d, before); aerr != nil {
			return nil, aerr
		}
		if err := d.EnvelopeStore.InsertKillSwitchEvent(ctx, scope, ev); err != nil {
			return nil, storeErr(err, "")
		}
		telemetry.KillSwitchEventsTotal.WithLabelValues("activated", reason).Inc()

		if d.Notifier != nil {
			go d.Notifier.Send(context.Background(), notificationFromKillSwitch(call.TenantID, ev))
		}
		return ev, nil
	}
}

func handleKillSwitchRearm(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		d.Coordinator.Rearm()
		telemetry.KillSwitchEventsTotal.WithLabelValues("rearmed", "").Inc()
		return map[string]any{"rearmed": true, "rearmed_at": time.Now().UTC()}, nil
	}
}
