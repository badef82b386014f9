package tenantconfig

import "testing"

func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestResolve_UsesDefaultsWhenUnset(t *testing.T) {
	d := Defaults{WarningThresholdPct: 80, AnomalyThresholdPct: 50, MaxIncidentsPerTenantPerHr: 20, AutoResolveAfterSeconds: 900}
	r := Config{}.Resolve(d)
	if r.WarningThresholdPct != 80 || r.AnomalyThresholdPct != 50 || r.MaxIncidentsPerTenantPerHr != 20 {
		t.Fatalf("Resolve with empty override = %+v, want defaults", r)
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	d := Defaults{WarningThresholdPct: 80, AnomalyThresholdPct: 50, MaxIncidentsPerTenantPerHr: 20, AutoResolveAfterSeconds: 900}
	c := Config{WarningThresholdPct: intPtr(60), AnomalyThresholdPct: floatPtr(25)}
	r := c.Resolve(d)
	if r.WarningThresholdPct != 60 || r.AnomalyThresholdPct != 25 {
		t.Fatalf("Resolve override = %+v, want 60/25", r)
	}
	if r.MaxIncidentsPerTenantPerHr != 20 {
		t.Fatalf("unset field should keep default, got %d", r.MaxIncidentsPerTenantPerHr)
	}
}
