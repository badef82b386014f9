package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardctl/ward/internal/platform"
)

var tenantIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// Store abstracts tenant CRUD operations against the public.tenants table.
type Store interface {
	CreateTenant(ctx context.Context, tenantID string) (uuid.UUID, error)
	DeleteTenant(ctx context.Context, id uuid.UUID) error
}

// DefaultStore is the raw-SQL Store implementation.
type DefaultStore struct {
	Pool *pgxpool.Pool
}

func (s *DefaultStore) CreateTenant(ctx context.Context, tenantID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO public.tenants (tenant_id, status) VALUES ($1, $2) RETURNING id",
		tenantID, StatusActive,
	).Scan(&id)
	return id, err
}

func (s *DefaultStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, "DELETE FROM public.tenants WHERE id = $1", id)
	return err
}

// Provisioner creates new tenants with their own database schema.
type Provisioner struct {
	DB            *pgxpool.Pool
	Store         Store // if nil, uses DefaultStore with raw SQL
	DatabaseURL   string
	MigrationsDir string
	Logger        *slog.Logger
}

func (p *Provisioner) store() Store {
	if p.Store != nil {
		return p.Store
	}
	return &DefaultStore{Pool: p.DB}
}

// Provision creates a new tenant: inserts the global row, creates the schema,
// and runs the tenant schema template migrations against it.
func (p *Provisioner) Provision(ctx context.Context, tenantID string) (*Info, error) {
	if !tenantIDRegex.MatchString(tenantID) {
		return nil, fmt.Errorf("invalid tenant id: %q", tenantID)
	}

	surrogateID, err := p.store().CreateTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("inserting tenant: %w", err)
	}

	schema := SchemaName(tenantID)

	if _, err := p.DB.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		_ = p.store().DeleteTenant(ctx, surrogateID)
		return nil, fmt.Errorf("creating schema %s: %w", schema, err)
	}

	tenantURL, err := WithSearchPath(p.DatabaseURL, schema)
	if err != nil {
		return nil, fmt.Errorf("building tenant database URL: %w", err)
	}

	if err := platform.RunTenantMigrations(tenantURL, p.MigrationsDir); err != nil {
		_, _ = p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		_ = p.store().DeleteTenant(ctx, surrogateID)
		return nil, fmt.Errorf("running tenant migrations: %w", err)
	}

	p.Logger.Info("tenant provisioned",
		"tenant_id", tenantID,
		"schema", schema,
	)

	return &Info{
		ID:       surrogateID,
		TenantID: tenantID,
		Schema:   schema,
		Status:   StatusActive,
	}, nil
}

// Deprovision drops the tenant schema and removes the global record.
func (p *Provisioner) Deprovision(ctx context.Context, tenantID string) error {
	schema := SchemaName(tenantID)

	if _, err := p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("dropping schema %s: %w", schema, err)
	}

	var surrogateID uuid.UUID
	err := p.DB.QueryRow(ctx,
		"SELECT id FROM public.tenants WHERE tenant_id = $1", tenantID,
	).Scan(&surrogateID)
	if err != nil {
		return fmt.Errorf("looking up tenant %q: %w", tenantID, err)
	}

	if err := p.store().DeleteTenant(ctx, surrogateID); err != nil {
		return fmt.Errorf("deleting tenant record: %w", err)
	}

	p.Logger.Info("tenant deprovisioned", "tenant_id", tenantID, "schema", schema)
	return nil
}

// Suspend flips a tenant's status to suspended; requests against a suspended
// tenant are rejected by the resolution middleware before search_path is set.
func (p *Provisioner) Suspend(ctx context.Context, tenantID string) error {
	_, err := p.DB.Exec(ctx,
		"UPDATE public.tenants SET status = $1 WHERE tenant_id = $2",
		StatusSuspended, tenantID,
	)
	return err
}

// Reactivate flips a suspended tenant back to active.
func (p *Provisioner) Reactivate(ctx context.Context, tenantID string) error {
	_, err := p.DB.Exec(ctx,
		"UPDATE public.tenants SET status = $1 WHERE tenant_id = $2",
		StatusActive, tenantID,
	)
	return err
}

// WithSearchPath returns a modified database URL with the search_path set.
func WithSearchPath(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
