// Package tenantconfig stores per-tenant overrides of the control plane's
// global defaults (internal/config.Config): warning/anomaly percentages,
// incident rate limits, and the auto-resolve window, read and written over
// the config API. The enforcement, snapshot and incident engines are built
// with the process-wide values and do not read these overrides, so a stored
// override does not change their decisions.
package tenantconfig

import "time"

// Config is one tenant's threshold overrides. A zero value for any field
// means "use the process default" — Resolved fills those in.
type Config struct {
	WarningThresholdPct        *int `json:"warning_threshold_pct,omitempty"`
	AnomalyThresholdPct        *float64 `json:"anomaly_threshold_pct,omitempty"`
	MaxIncidentsPerTenantPerHr *int `json:"max_incidents_per_tenant_per_hour,omitempty"`
	AutoResolveAfterSeconds    *int `json:"auto_resolve_after_seconds,omitempty"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// Defaults is the process-wide fallback a tenant's Config is resolved
// against. It mirrors the subset of internal/config.Config this package
// knows how to override.
type Defaults struct {
	WarningThresholdPct        int
	AnomalyThresholdPct        float64
	MaxIncidentsPerTenantPerHr int
	AutoResolveAfterSeconds    int
}

// Resolved is a Config with every field filled in, either from the tenant's
// override or the process default.
type Resolved struct {
	WarningThresholdPct        int
	AnomalyThresholdPct        float64
	MaxIncidentsPerTenantPerHr int
	AutoResolveAfter           time.Duration
}

// Resolve merges c over d, tenant override winning wherever it's set.
func (c Config) Resolve(d Defaults) Resolved {
	r := Resolved{
		WarningThresholdPct:        d.WarningThresholdPct,
		AnomalyThresholdPct:        d.AnomalyThresholdPct,
		MaxIncidentsPerTenantPerHr: d.MaxIncidentsPerTenantPerHr,
		AutoResolveAfter:           time.Duration(d.AutoResolveAfterSeconds) * time.Second,
	}
	if c.WarningThresholdPct != nil {
		r.WarningThresholdPct = *c.WarningThresholdPct
	}
	if c.AnomalyThresholdPct != nil {
		r.AnomalyThresholdPct = *c.AnomalyThresholdPct
	}
	if c.MaxIncidentsPerTenantPerHr != nil {
		r.MaxIncidentsPerTenantPerHr = *c.MaxIncidentsPerTenantPerHr
	}
	if c.AutoResolveAfterSeconds != nil {
		r.AutoResolveAfter = time.Duration(*c.AutoResolveAfterSeconds) * time.Second
	}
	return r
}

// UpdateRequest is the PUT /api/v1/config payload. All fields optional;
// validation bounds are loose guardrails, not business rules.
type UpdateRequest struct {
	WarningThresholdPct        *int     `json:"warning_threshold_pct" validate:"omitempty,gte=1,lte=100"`
	AnomalyThresholdPct        *float64 `json:"anomaly_threshold_pct" validate:"omitempty,gte=1"`
	MaxIncidentsPerTenantPerHr *int     `json:"max_incidents_per_tenant_per_hour" validate:"omitempty,gte=1"`
	AutoResolveAfterSeconds    *int     `json:"auto_resolve_after_seconds" validate:"omitempty,gte=60"`
}
