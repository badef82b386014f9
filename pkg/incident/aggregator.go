package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/storage"
)

// FailureEvent is one input to the Aggregator: a failed call to be grouped
// into an incident.
type FailureEvent struct {
	TriggerType  string
	TriggerValue string
	CallID       string
	CostCents    int64
	OccurredAt   time.Time
}

// Aggregator implements the §4.I per-event algorithm: look up the open
// incident for the event's window key, escalate and extend it if found,
// otherwise create one unless the tenant's hourly incident rate is already
// exhausted, in which case the event is folded into a synthetic
// rate_limit_overflow incident instead.
type Aggregator struct {
	store                  *Store
	window                 time.Duration
	maxIncidentsPerTenantHr int
	relatedCallsCap        int
}

// New builds an Aggregator. window is the bucket size (default 5m);
// maxIncidentsPerTenantHr and relatedCallsCap are the configured ceilings
// (defaults 20 and 1000).
func New(store *Store, window time.Duration, maxIncidentsPerTenantHr, relatedCallsCap int) *Aggregator {
	return &Aggregator{store: store, window: window, maxIncidentsPerTenantHr: maxIncidentsPerTenantHr, relatedCallsCap: relatedCallsCap}
}

// Process runs one FailureEvent through the aggregation algorithm, returning
// the incident it landed in.
func (a *Aggregator) Process(ctx context.Context, scope *storage.Scope, ev FailureEvent) (*Incident, error) {
	bucket := BucketStart(ev.OccurredAt, a.window)

	inc, err := a.store.FindOpenInWindow(ctx, scope, ev.TriggerType, bucket)
	if err != nil {
		return nil, err
	}
	if inc != nil {
		return inc, a.extend(ctx, scope, inc, ev)
	}

	since := ev.OccurredAt.Add(-time.Hour)
	count, err := a.store.CountCreatedSince(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	if count >= a.maxIncidentsPerTenantHr {
		return a.routeToOverflow(ctx, scope, bucket, ev)
	}

	return a.create(ctx, scope, ev.TriggerType, ev.TriggerValue, bucket, ev)
}

// extend adds ev to an already-open incident and escalates severity if the
// new call count crosses a tier.
func (a *Aggregator) extend(ctx context.Context, scope *storage.Scope, inc *Incident, ev FailureEvent) error {
	inc.CallsAffected++
	inc.CostDeltaCents += ev.CostCents
	inc.RelatedCallIDs = appendCapped(inc.RelatedCallIDs, ev.CallID, a.relatedCallsCap)

	prev := inc.Severity
	next, escalated := escalate(inc.CallsAffected, inc.Severity)
	inc.Severity = next

	if err := a.store.Update(ctx, scope, inc); err != nil {
		return err
	}
	if err := a.store.AppendEvent(ctx, scope, Event{
		IncidentID: inc.ID, EventType: EventCallAdded,
		Description: "call added to incident", Data: map[string]any{"call_id": ev.CallID},
	}); err != nil {
		return err
	}
	if escalated {
		telemetry.IncidentsEscalatedTotal.WithLabelValues(string(prev), string(next)).Inc()
		return a.store.AppendEvent(ctx, scope, Event{
			IncidentID: inc.ID, EventType: EventSeverityEscalated,
			Description: fmt.Sprintf("severity escalated to %s", next),
			Data:        map[string]any{"calls_affected": inc.CallsAffected, "severity": next},
		})
	}
	return nil
}

// create opens a brand new incident for the event's window key.
func (a *Aggregator) create(ctx context.Context, scope *storage.Scope, triggerType, triggerValue string, bucket time.Time, ev FailureEvent) (*Incident, error) {
	inc := &Incident{
		TriggerType:    triggerType,
		TriggerValue:   triggerValue,
		Title:          initialTitle(triggerType, triggerValue),
		Severity:       initialSeverity(1),
		CallsAffected:  1,
		CostDeltaCents: ev.CostCents,
		BucketStart:    bucket,
		RelatedCallIDs: appendCapped(nil, ev.CallID, a.relatedCallsCap),
	}
	if err := a.store.Create(ctx, scope, inc); err != nil {
		return nil, err
	}
	if err := a.store.AppendEvent(ctx, scope, Event{
		IncidentID: inc.ID, EventType: EventCreated,
		Description: "incident created", Data: map[string]any{"trigger_type": triggerType},
	}); err != nil {
		return nil, err
	}
	return inc, nil
}

// routeToOverflow folds ev into the tenant's single per-hour
// rate_limit_overflow incident, creating it if this is the first overflow
// this hour.
func (a *Aggregator) routeToOverflow(ctx context.Context, scope *storage.Scope, bucket time.Time, ev FailureEvent) (*Incident, error) {
	hourBucket := BucketStart(ev.OccurredAt, time.Hour)
	inc, err := a.store.FindOpenInWindow(ctx, scope, RateLimitOverflowTrigger, hourBucket)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		inc, err = a.create(ctx, scope, RateLimitOverflowTrigger, ev.TriggerType, hourBucket, ev)
		return inc, err
	}
	return inc, a.extend(ctx, scope, inc, ev)
}

// AutoResolveStale closes every incident with no activity for
// autoResolveAfter, returning the ids resolved.
func (a *Aggregator) AutoResolveStale(ctx context.Context, scope *storage.Scope, now time.Time, autoResolveAfter time.Duration) ([]string, error) {
	stale, err := a.store.StaleOpen(ctx, scope, now.Add(-autoResolveAfter))
	if err != nil {
		return nil, err
	}

	var resolvedIDs []string
	for i := range stale {
		inc := &stale[i]
		inc.Status = StatusResolved
		resolvedAt := now
		inc.ResolvedAt = &resolvedAt
		if err := a.store.Update(ctx, scope, inc); err != nil {
			return resolvedIDs, err
		}
		if err := a.store.AppendEvent(ctx, scope, Event{
			IncidentID: inc.ID, EventType: EventAutoResolved,
			Description: "auto-resolved after inactivity",
		}); err != nil {
			return resolvedIDs, err
		}
		resolvedIDs = append(resolvedIDs, inc.ID.String())
	}
	return resolvedIDs, nil
}
