package tenant

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLookup struct {
	id     uuid.UUID
	status Status
	err    error
}

func (f fakeLookup) LookupByTenantID(ctx context.Context, tenantID string) (uuid.UUID, Status, error) {
	return f.id, f.status, f.err
}

func TestHeaderResolver_Resolve(t *testing.T) {
	resolver := HeaderResolver{}

	t.Run("returns tenant id from header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Tenant-ID", "acme")

		id, err := resolver.Resolve(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "acme" {
			t.Errorf("tenant id = %q, want %q", id, "acme")
		}
	})

	t.Run("returns error when header missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := resolver.Resolve(r)
		if err == nil {
			t.Fatal("expected error for missing header")
		}
	})
}

func TestMiddlewareWithLookup_RejectsSuspendedTenant(t *testing.T) {
	lookup := fakeLookup{id: uuid.New(), status: StatusSuspended}
	var reached bool
	handler := MiddlewareWithLookup(lookup, HeaderResolver{}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-ID", "acme")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if reached {
		t.Fatal("downstream handler must not run for a suspended tenant")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestMiddlewareWithLookup_SetsTenantInfoForActiveTenant(t *testing.T) {
	id := uuid.New()
	lookup := fakeLookup{id: id, status: StatusActive}
	var gotInfo *Info
	handler := MiddlewareWithLookup(lookup, HeaderResolver{}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInfo = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-ID", "acme")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if gotInfo == nil {
		t.Fatal("expected tenant info in context")
	}
	if gotInfo.TenantID != "acme" || gotInfo.Schema != "tenant_acme" || gotInfo.ID != id {
		t.Errorf("info = %+v", gotInfo)
	}
}
