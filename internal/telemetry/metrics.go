package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across every mounted route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ward",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// EnforcementDecisionsTotal counts Enforcement Engine outcomes by decision
// severity (allowed/warned/throttled/blocked/hard_blocked).
var EnforcementDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "enforcement",
		Name:      "decisions_total",
		Help:      "Total number of enforcement decisions by outcome.",
	},
	[]string{"decision", "degraded"},
)

// CoordinationDecisionsTotal counts Envelope Coordinator outcomes.
var CoordinationDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "envelope",
		Name:      "coordination_decisions_total",
		Help:      "Total number of coordination decisions by action.",
	},
	[]string{"action"},
)

// KillSwitchEventsTotal counts kill-switch trips and resets.
var KillSwitchEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "envelope",
		Name:      "kill_switch_events_total",
		Help:      "Total number of kill-switch state transitions.",
	},
	[]string{"state", "reason"},
)

// IncidentsCreatedTotal counts incidents created by trigger type.
var IncidentsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "incident",
		Name:      "created_total",
		Help:      "Total number of incidents created by trigger type.",
	},
	[]string{"trigger_type"},
)

// IncidentsEscalatedTotal counts severity escalations.
var IncidentsEscalatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "incident",
		Name:      "escalated_total",
		Help:      "Total number of incident severity escalations.",
	},
	[]string{"from_severity", "to_severity"},
)

// AnomaliesDetectedTotal counts anomalies flagged by the Snapshot Engine.
var AnomaliesDetectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "snapshot",
		Name:      "anomalies_detected_total",
		Help:      "Total number of anomalies detected by entity type and severity.",
	},
	[]string{"entity_type", "severity"},
)

// MaintenanceTaskDuration tracks how long each maintenance task takes.
var MaintenanceTaskDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ward",
		Subsystem: "maintenance",
		Name:      "task_duration_seconds",
		Help:      "Maintenance task run duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"task"},
)

// MaintenanceTaskOutcomesTotal counts maintenance task runs by outcome.
var MaintenanceTaskOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "maintenance",
		Name:      "task_outcomes_total",
		Help:      "Total number of maintenance task runs by outcome.",
	},
	[]string{"task", "outcome"},
)

// LockContentionTotal counts failed distributed lock acquisitions.
var LockContentionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "lock",
		Name:      "contention_total",
		Help:      "Total number of distributed lock acquisition attempts that lost to a holder.",
	},
	[]string{"name"},
)

// UsageRecordsIngestedTotal counts ingested usage records, including
// duplicates rejected by the call_id idempotency key.
var UsageRecordsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ward",
		Subsystem: "usage",
		Name:      "records_ingested_total",
		Help:      "Total number of usage records ingested by outcome.",
	},
	[]string{"outcome"},
)

// All returns every ward-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		EnforcementDecisionsTotal,
		CoordinationDecisionsTotal,
		KillSwitchEventsTotal,
		IncidentsCreatedTotal,
		IncidentsEscalatedTotal,
		AnomaliesDetectedTotal,
		MaintenanceTaskDuration,
		MaintenanceTaskOutcomesTotal,
		LockContentionTotal,
		UsageRecordsIngestedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and every ward-specific collector.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
