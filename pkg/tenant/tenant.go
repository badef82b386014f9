// Package tenant implements schema-per-tenant isolation: every tenant owns a
// dedicated `tenant_<slug>` PostgreSQL schema, and every request is bound to
// exactly one tenant's search_path for its lifetime.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the Tenant lifecycle state (§3).
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Info holds the resolved tenant metadata for the current request.
type Info struct {
	ID        uuid.UUID // internal surrogate key
	TenantID  string    // opaque, globally unique identifier (the slug)
	Schema    string
	Status    Status
	CreatedAt time.Time
}

// SchemaName returns the PostgreSQL schema name for a tenant id.
func SchemaName(tenantID string) string {
	return fmt.Sprintf("tenant_%s", tenantID)
}

type contextKey string

const infoKey contextKey = "tenant_info"

// NewContext stores tenant info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant info from the context. Returns nil if no
// tenant is set.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}
