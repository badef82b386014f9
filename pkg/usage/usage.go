// Package usage implements component C, the Telemetry Driver: append-only
// usage/cost record writes plus the derived reads the Enforcement Engine and
// Snapshot Engine need. The driver is pure I/O — it never decides policy and
// never commits; it only flushes into the scope the caller provides.
package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record is an immutable, append-only usage record (§3). Uniqueness on
// (tenant_id, call_id) gives at-most-once ingestion.
type Record struct {
	ID            uuid.UUID
	TenantID      string
	IntegrationID uuid.UUID
	CallID        string
	SessionID     *string
	AgentID       *string
	Provider      string
	Model         string
	TokensIn      int64
	TokensOut     int64
	CostCents     int64
	LatencyMs     *int64
	PolicyResult  *string
	ErrorCode     *string
	ErrorMessage  *string
	CreatedAt     time.Time
}

// DailyAggregate is the idempotent per-day rollup derived from Record rows.
type DailyAggregate struct {
	Date          time.Time
	TenantID      string
	IntegrationID uuid.UUID
	CallCount     int64
	TotalCostCents int64
	TotalTokensIn  int64
	TotalTokensOut int64
	ErrorCount     int64
}

// Summary is the aggregate view fetch_usage_summary returns over a window.
type Summary struct {
	TotalCostCents int64
	TotalTokensIn  int64
	TotalTokensOut int64
	CallCount      int64
	ErrorCount     int64
}
