// Package incident implements component I, the Incident Aggregator:
// time-windowed grouping of failure events into incidents, rate-limited
// creation, and severity escalation (§4.I).
package incident

import (
	"time"

	"github.com/google/uuid"
)

// Status is an Incident's lifecycle state.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Severity ranks an incident's current escalation level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RateLimitOverflowTrigger is the synthetic trigger_type a tenant's
// over-quota failures are routed into instead of a real incident (§4.I
// step 3), capped at one per tenant per hour.
const RateLimitOverflowTrigger = "rate_limit_overflow"

// Incident is a grouped record of failures within a 5-minute window key
// (tenant_id, trigger_type, bucket_start).
type Incident struct {
	ID             uuid.UUID
	TriggerType    string
	TriggerValue   string
	Title          string
	Severity       Severity
	Status         Status
	CallsAffected  int64
	CostDeltaCents int64
	BucketStart    time.Time
	StartedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
	RelatedCallIDs []string // bounded to IncidentRelatedCallsCap
	AutoAction     string
}

// EventType enumerates IncidentEvent timeline entries.
type EventType string

const (
	EventCreated           EventType = "incident_created"
	EventCallAdded         EventType = "call_added"
	EventSeverityEscalated EventType = "severity_escalated"
	EventAutoResolved      EventType = "auto_resolved"
	EventAcknowledged      EventType = "acknowledged"
)

// Event is one timeline entry for an Incident.
type Event struct {
	ID          uuid.UUID
	IncidentID  uuid.UUID
	EventType   EventType
	Description string
	Data        map[string]any
	CreatedAt   time.Time
}

// BucketStart floors t to the nearest window boundary, UTC.
func BucketStart(t time.Time, window time.Duration) time.Time {
	return t.UTC().Truncate(window)
}

// appendCapped appends id to ids, capping the slice's length at max by
// dropping the oldest entries — related_call_ids is a bounded audit sample,
// not an exhaustive list (§3: "related_call_ids[] (bounded)").
func appendCapped(ids []string, id string, max int) []string {
	ids = append(ids, id)
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids
}
