package tenant

import (
	"context"
	"testing"
)

func TestSchemaName(t *testing.T) {
	tests := []struct {
		tenantID string
		want     string
	}{
		{"acme", "tenant_acme"},
		{"test_org", "tenant_test_org"},
		{"a1", "tenant_a1"},
	}
	for _, tt := range tests {
		t.Run(tt.tenantID, func(t *testing.T) {
			got := SchemaName(tt.tenantID)
			if got != tt.want {
				t.Errorf("SchemaName(%q) = %q, want %q", tt.tenantID, got, tt.want)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	// Without tenant set.
	if got := FromContext(ctx); got != nil {
		t.Fatalf("expected nil tenant, got %+v", got)
	}

	info := &Info{TenantID: "acme", Schema: "tenant_acme", Status: StatusActive}
	ctx = NewContext(ctx, info)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected tenant info, got nil")
	}
	if got.TenantID != "acme" {
		t.Errorf("tenant id = %q, want %q", got.TenantID, "acme")
	}
}
