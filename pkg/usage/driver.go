package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/storage"
)

// Driver is the Telemetry Driver: typed row operations against the
// tenant-scoped usage_records / usage_daily tables. Every method takes the
// scope the dispatcher began so all writes in a request land in one
// transaction.
type Driver struct{}

// New constructs a Driver. It is stateless — all state lives in the scope
// passed to each call.
func New() *Driver { return &Driver{} }

// CreateUsage appends one usage record. Duplicate call_id within a tenant is
// a silent no-op (idempotent ingestion), reported via the returned bool.
func (d *Driver) CreateUsage(ctx context.Context, scope *storage.Scope, r Record) (inserted bool, err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	tag, execErr := scope.Tx().Exec(ctx, `
		INSERT INTO usage_records
			(id, integration_id, call_id, session_id, agent_id, provider, model,
			 tokens_in, tokens_out, cost_cents, latency_ms, policy_result,
			 error_code, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
		ON CONFLICT (call_id) DO NOTHING
	`, r.ID, r.IntegrationID, r.CallID, r.SessionID, r.AgentID, r.Provider, r.Model,
		r.TokensIn, r.TokensOut, r.CostCents, r.LatencyMs, r.PolicyResult,
		r.ErrorCode, r.ErrorMessage)
	if execErr != nil {
		return false, storage.Classify(execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateUsageBatch inserts multiple records, skipping duplicates. It returns
// the count actually inserted.
func (d *Driver) CreateUsageBatch(ctx context.Context, scope *storage.Scope, records []Record) (insertedCount int, err error) {
	for _, r := range records {
		ok, err := d.CreateUsage(ctx, scope, r)
		if err != nil {
			return insertedCount, err
		}
		if ok {
			insertedCount++
		}
	}
	return insertedCount, nil
}

// FetchUsageSummary aggregates usage for an integration over [from, to).
func (d *Driver) FetchUsageSummary(ctx context.Context, scope *storage.Scope, integrationID uuid.UUID, from, to time.Time) (Summary, error) {
	var s Summary
	err := scope.Tx().QueryRow(ctx, `
		SELECT
			COALESCE(SUM(cost_cents), 0),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE error_code IS NOT NULL)
		FROM usage_records
		WHERE integration_id = $1 AND created_at >= $2 AND created_at < $3
	`, integrationID, from, to).Scan(&s.TotalCostCents, &s.TotalTokensIn, &s.TotalTokensOut, &s.CallCount, &s.ErrorCount)
	if err != nil {
		return Summary{}, storage.Classify(err)
	}
	return s, nil
}

// FetchPerIntegrationUsage returns one Summary per integration for a tenant
// over [from, to).
func (d *Driver) FetchPerIntegrationUsage(ctx context.Context, scope *storage.Scope, from, to time.Time) (map[uuid.UUID]Summary, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT integration_id,
			COALESCE(SUM(cost_cents), 0),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE error_code IS NOT NULL)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY integration_id
	`, from, to)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]Summary)
	for rows.Next() {
		var id uuid.UUID
		var s Summary
		if err := rows.Scan(&id, &s.TotalCostCents, &s.TotalTokensIn, &s.TotalTokensOut, &s.CallCount, &s.ErrorCount); err != nil {
			return nil, storage.Classify(err)
		}
		out[id] = s
	}
	return out, storage.Classify(rows.Err())
}

// FetchUsageHistory returns raw records for an integration over [from, to),
// newest first, capped at limit.
func (d *Driver) FetchUsageHistory(ctx context.Context, scope *storage.Scope, integrationID uuid.UUID, from, to time.Time, limit int) ([]Record, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT id, integration_id, call_id, session_id, agent_id, provider, model,
			tokens_in, tokens_out, cost_cents, latency_ms, policy_result,
			error_code, error_message, created_at
		FROM usage_records
		WHERE integration_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, integrationID, from, to, limit)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.IntegrationID, &r.CallID, &r.SessionID, &r.AgentID,
			&r.Provider, &r.Model, &r.TokensIn, &r.TokensOut, &r.CostCents, &r.LatencyMs,
			&r.PolicyResult, &r.ErrorCode, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, r)
	}
	return out, storage.Classify(rows.Err())
}

// UpsertDailyAggregate derives one day's DailyAggregate from usage_records
// and writes it idempotently on (integration_id, date).
func (d *Driver) UpsertDailyAggregate(ctx context.Context, scope *storage.Scope, integrationID uuid.UUID, date time.Time) error {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO usage_daily (integration_id, date, call_count, total_cost_cents, total_tokens_in, total_tokens_out, error_count)
		SELECT $1, $2::date,
			COUNT(*),
			COALESCE(SUM(cost_cents), 0),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0),
			COUNT(*) FILTER (WHERE error_code IS NOT NULL)
		FROM usage_records
		WHERE integration_id = $1 AND created_at >= $3 AND created_at < $4
		ON CONFLICT (integration_id, date) DO UPDATE SET
			call_count = EXCLUDED.call_count,
			total_cost_cents = EXCLUDED.total_cost_cents,
			total_tokens_in = EXCLUDED.total_tokens_in,
			total_tokens_out = EXCLUDED.total_tokens_out,
			error_count = EXCLUDED.error_count
	`, integrationID, dayStart, dayStart, dayEnd)
	return storage.Classify(err)
}

// FetchDailyAggregates returns the DailyAggregate rows for an integration
// over [from, to) (dates).
func (d *Driver) FetchDailyAggregates(ctx context.Context, scope *storage.Scope, integrationID uuid.UUID, from, to time.Time) ([]DailyAggregate, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT integration_id, date, call_count, total_cost_cents, total_tokens_in, total_tokens_out, error_count
		FROM usage_daily
		WHERE integration_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC
	`, integrationID, from, to)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		if err := rows.Scan(&a.IntegrationID, &a.Date, &a.CallCount, &a.TotalCostCents, &a.TotalTokensIn, &a.TotalTokensOut, &a.ErrorCount); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, a)
	}
	return out, storage.Classify(rows.Err())
}

// FetchBudgetUsage returns month-to-date cost for an integration, used by the
// Enforcement Engine's budget check.
func (d *Driver) FetchBudgetUsage(ctx context.Context, scope *storage.Scope, integrationID uuid.UUID, monthStart time.Time) (costCents int64, err error) {
	err = scope.Tx().QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_cents), 0)
		FROM usage_records
		WHERE integration_id = $1 AND created_at >= $2
	`, integrationID, monthStart).Scan(&costCents)
	return costCents, storage.Classify(err)
}

// FetchTokenUsage returns month-to-date token count for an integration.
func (d *Driver) FetchTokenUsage(ctx context.Context, scope *storage.Scope, integrationID uuid.UUID, monthStart time.Time) (tokens int64, err error) {
	err = scope.Tx().QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens_in + tokens_out), 0)
		FROM usage_records
		WHERE integration_id = $1 AND created_at >= $2
	`, integrationID, monthStart).Scan(&tokens)
	return tokens, storage.Classify(err)
}
