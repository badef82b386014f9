// Package snapshot implements component E, the Snapshot & Anomaly Engine:
// periodic aggregation, rolling baseline computation, and deviation-based
// anomaly detection over tenant usage (§4.E).
package snapshot

import (
	"time"

	"github.com/google/uuid"
)

// Type distinguishes a daily rollup from an hourly one.
type Type string

const (
	TypeDaily  Type = "daily"
	TypeHourly Type = "hourly"
)

// Status is a CostSnapshot's computation lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusComplete Status = "complete"
	StatusFailed  Status = "failed"
)

// EntityType is the granularity a SnapshotAggregate rolls up at.
type EntityType string

const (
	EntityTenant    EntityType = "tenant"
	EntityUser      EntityType = "user"
	EntityFeature   EntityType = "feature"
	EntityModel     EntityType = "model"
)

// WindowDays is the lookback a Baseline was computed over.
type WindowDays int

const (
	Window7d  WindowDays = 7
	Window30d WindowDays = 30
)

// Severity ranks how far an anomaly's deviation exceeds threshold.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// CostSnapshot is one computation run over a [period_start, period_end)
// window. Unique on (tenant_id, type, period_start); re-running the same
// window bumps Version rather than inserting a duplicate row.
type CostSnapshot struct {
	ID               uuid.UUID
	Type             Type
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Status           Status
	Version          int
	RecordsProcessed int64
	ComputationMs    int64
	CompletedAt      *time.Time
	ErrorMessage     string
}

// SnapshotAggregate is one entity's rollup within a snapshot.
type SnapshotAggregate struct {
	SnapshotID     uuid.UUID
	EntityType     EntityType
	EntityID       string // empty for the tenant-level aggregate
	TotalCostCents int64
	TotalTokens    int64
	RequestCount   int64
	Baseline7d     *float64
	Baseline30d    *float64
	Deviation7dPct *float64
}

// Baseline is the rolling mean/stddev of daily cost for one
// (entity_type, entity_id, window_days). Exactly one row per that triple has
// IsCurrent=true at any time.
type Baseline struct {
	ID           uuid.UUID
	EntityType   EntityType
	EntityID     string
	WindowDays   WindowDays
	AvgDailyCost float64
	StdDev       float64
	SamplesCount int
	ComputedAt   time.Time
	ValidUntil   time.Time
	IsCurrent    bool
}

// LowConfidence reports whether this baseline rests on too few samples to be
// trusted outright — callers must check this rather than act on the mean
// blindly (§4.E).
func (b Baseline) LowConfidence() bool { return b.SamplesCount < 3 }

// AnomalyEvaluation is recorded for every threshold check, whether or not it
// fired, so a false-negative trace stays auditable.
type AnomalyEvaluation struct {
	ID             uuid.UUID
	SnapshotID     uuid.UUID
	EntityType     EntityType
	EntityID       string
	CurrentValue   float64
	Baseline7d     float64
	DeviationPct   float64
	ThresholdPct   float64
	Triggered      bool
	EvaluatedAt    time.Time
}

// Anomaly is the subset of evaluations that triggered.
type Anomaly struct {
	ID           uuid.UUID
	EvaluationID uuid.UUID
	SnapshotID   uuid.UUID
	EntityType   EntityType
	EntityID     string
	DeviationPct float64
	Severity     Severity
	DetectedAt   time.Time
}
