package integration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/storage"
)

// Store provides typed CRUD against the tenant-scoped integrations table.
type Store struct{}

func NewStore() *Store { return &Store{} }

// Create inserts a new Integration. CredentialRef must already have passed
// ValidateCredentialRef — the store does not re-validate.
func (s *Store) Create(ctx context.Context, scope *storage.Scope, in Integration) (Integration, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if in.HealthState == "" {
		in.HealthState = HealthHealthy
	}
	err := scope.Tx().QueryRow(ctx, `
		INSERT INTO integrations
			(id, provider_type, name, status, health_state, health_message,
			 budget_limit_cents, token_limit_month, rate_limit_rpm, credential_ref,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now(), now())
		RETURNING created_at, updated_at
	`, in.ID, in.ProviderType, in.Name, in.Status, in.HealthState, in.HealthMessage,
		in.BudgetLimitCents, in.TokenLimitMonth, in.RateLimitRPM, in.CredentialRef,
	).Scan(&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return Integration{}, storage.Classify(err)
	}
	return in, nil
}

// Get fetches a non-deleted Integration by id.
func (s *Store) Get(ctx context.Context, scope *storage.Scope, id uuid.UUID) (Integration, error) {
	var i Integration
	err := scope.Tx().QueryRow(ctx, `
		SELECT id, provider_type, name, status, health_state, health_message,
			budget_limit_cents, token_limit_month, rate_limit_rpm, credential_ref,
			created_at, updated_at, deleted_at
		FROM integrations
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&i.ID, &i.ProviderType, &i.Name, &i.Status, &i.HealthState, &i.HealthMessage,
		&i.BudgetLimitCents, &i.TokenLimitMonth, &i.RateLimitRPM, &i.CredentialRef,
		&i.CreatedAt, &i.UpdatedAt, &i.DeletedAt)
	if err != nil {
		return Integration{}, storage.Classify(err)
	}
	return i, nil
}

// List returns every non-deleted Integration for the current tenant schema.
func (s *Store) List(ctx context.Context, scope *storage.Scope) ([]Integration, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT id, provider_type, name, status, health_state, health_message,
			budget_limit_cents, token_limit_month, rate_limit_rpm, credential_ref,
			created_at, updated_at, deleted_at
		FROM integrations
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		var i Integration
		if err := rows.Scan(&i.ID, &i.ProviderType, &i.Name, &i.Status, &i.HealthState, &i.HealthMessage,
			&i.BudgetLimitCents, &i.TokenLimitMonth, &i.RateLimitRPM, &i.CredentialRef,
			&i.CreatedAt, &i.UpdatedAt, &i.DeletedAt); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, i)
	}
	return out, storage.Classify(rows.Err())
}

// UpdateHealth updates status/health fields only — the narrow mutation path
// used after a credential or connectivity probe.
func (s *Store) UpdateHealth(ctx context.Context, scope *storage.Scope, id uuid.UUID, status Status, health HealthState, message string) error {
	_, err := scope.Tx().Exec(ctx, `
		UPDATE integrations
		SET status = $2, health_state = $3, health_message = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, status, health, message)
	return storage.Classify(err)
}

// UpdateLimits updates the configurable quota ceilings.
func (s *Store) UpdateLimits(ctx context.Context, scope *storage.Scope, id uuid.UUID, budgetLimitCents, tokenLimitMonth, rateLimitRPM *int64) error {
	_, err := scope.Tx().Exec(ctx, `
		UPDATE integrations
		SET budget_limit_cents = $2, token_limit_month = $3, rate_limit_rpm = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, budgetLimitCents, tokenLimitMonth, rateLimitRPM)
	return storage.Classify(err)
}

// SoftDelete tombstones an integration rather than deleting the row.
func (s *Store) SoftDelete(ctx context.Context, scope *storage.Scope, id uuid.UUID) error {
	_, err := scope.Tx().Exec(ctx, `
		UPDATE integrations SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now().UTC())
	return storage.Classify(err)
}
