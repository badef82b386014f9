package tenantconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads and writes tenant config overrides in public.tenants.config —
// a global-schema column, not a tenant-scoped table. Its reads and writes go
// through the pool, outside any tenant transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the stored Config for tenantID, or a zero Config (all
// defaults) if the tenant has never set an override.
func (s *Store) Get(ctx context.Context, tenantID string) (Config, error) {
	var raw []byte
	var updatedAt Config
	err := s.pool.QueryRow(ctx, `SELECT config, updated_at FROM public.tenants WHERE tenant_id = $1`, tenantID).
		Scan(&raw, &updatedAt.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("fetching tenant config: %w", err)
	}

	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshalling tenant config: %w", err)
		}
	}
	cfg.UpdatedAt = updatedAt.UpdatedAt
	return cfg, nil
}

// Update replaces tenantID's stored overrides with req's fields.
func (s *Store) Update(ctx context.Context, tenantID string, req UpdateRequest) (Config, error) {
	cfg := Config{
		WarningThresholdPct:        req.WarningThresholdPct,
		AnomalyThresholdPct:        req.AnomalyThresholdPct,
		MaxIncidentsPerTenantPerHr: req.MaxIncidentsPerTenantPerHr,
		AutoResolveAfterSeconds:    req.AutoResolveAfterSeconds,
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("marshalling tenant config: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		UPDATE public.tenants SET config = $2, updated_at = now() WHERE tenant_id = $1
		RETURNING updated_at
	`, tenantID, raw).Scan(&cfg.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("updating tenant config: %w", err)
	}
	return cfg, nil
}
