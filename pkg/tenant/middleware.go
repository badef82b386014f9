package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolver identifies the tenant for the current request.
type Resolver interface {
	Resolve(r *http.Request) (tenantID string, err error)
}

// HeaderResolver resolves the tenant from the X-Tenant-ID header. ward's
// transport exclusion (§1) means authentication itself is out of scope; this
// resolver is the narrow seam a real auth layer would sit in front of.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	id := r.Header.Get("X-Tenant-ID")
	if id == "" {
		return "", fmt.Errorf("missing X-Tenant-ID header")
	}
	return id, nil
}

// Lookup retrieves tenant metadata by tenant id.
type Lookup interface {
	LookupByTenantID(ctx context.Context, tenantID string) (id uuid.UUID, status Status, err error)
}

// DefaultLookup provides a raw-SQL Lookup using a pgxpool.Pool.
type DefaultLookup struct {
	Pool *pgxpool.Pool
}

func (l *DefaultLookup) LookupByTenantID(ctx context.Context, tenantID string) (uuid.UUID, Status, error) {
	var id uuid.UUID
	var status string
	err := l.Pool.QueryRow(ctx,
		"SELECT id, status FROM public.tenants WHERE tenant_id = $1",
		tenantID,
	).Scan(&id, &status)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, Status(status), nil
}

// Middleware resolves and validates the tenant for the request, then stores
// its Info in the context. It does not touch the database connection pool:
// per-request transactional scoping (begin, SetSearchPath, commit/rollback)
// is the dispatcher's job alone (§4.G) — this middleware only decides which
// tenant a request belongs to and rejects it outright if that tenant is
// unknown or suspended.
func Middleware(pool *pgxpool.Pool, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return MiddlewareWithLookup(&DefaultLookup{Pool: pool}, resolver, logger)
}

// MiddlewareWithLookup is like Middleware but accepts a custom Lookup.
func MiddlewareWithLookup(lookup Lookup, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := resolver.Resolve(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "tenant resolution failed")
				return
			}

			surrogateID, status, err := lookup.LookupByTenantID(r.Context(), tenantID)
			if err != nil {
				logger.Warn("tenant not found", "tenant_id", tenantID, "error", err)
				respondError(w, http.StatusUnauthorized, "unauthorized", "unknown tenant")
				return
			}

			if status == StatusSuspended {
				respondError(w, http.StatusForbidden, "tenant_suspended", "tenant is suspended")
				return
			}

			info := &Info{
				ID:       surrogateID,
				TenantID: tenantID,
				Schema:   SchemaName(tenantID),
				Status:   status,
			}

			logger.Debug("tenant resolved", "tenant_id", tenantID, "schema", info.Schema)

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
		})
	}
}

func respondError(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
