package incident

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wardctl/ward/pkg/storage"
)

// Store persists Incident/Event rows in the tenant schema the caller's
// scope is bound to.
type Store struct{}

func NewStore() *Store { return &Store{} }

// FindOpenInWindow looks up the open incident for (trigger_type, bucket) —
// the §4.I key (tenant_id, trigger_type, window_start), tenant already
// implied by the scope's search_path.
func (s *Store) FindOpenInWindow(ctx context.Context, scope *storage.Scope, triggerType string, bucket time.Time) (*Incident, error) {
	var inc Incident
	var relatedIDs []string
	err := scope.Tx().QueryRow(ctx, `
		SELECT id, trigger_type, trigger_value, title, severity, status,
			calls_affected, cost_delta_cents, bucket_start, started_at, updated_at,
			resolved_at, related_call_ids, auto_action
		FROM incidents
		WHERE trigger_type = $1 AND bucket_start = $2 AND status != $3
	`, triggerType, bucket, StatusResolved).Scan(
		&inc.ID, &inc.TriggerType, &inc.TriggerValue, &inc.Title, &inc.Severity, &inc.Status,
		&inc.CallsAffected, &inc.CostDeltaCents, &inc.BucketStart, &inc.StartedAt, &inc.UpdatedAt,
		&inc.ResolvedAt, &relatedIDs, &inc.AutoAction,
	)
	if err != nil {
		if storage.IsTransient(storage.Classify(err)) {
			return nil, storage.Classify(err)
		}
		return nil, nil
	}
	inc.RelatedCallIDs = relatedIDs
	return &inc, nil
}

// CountCreatedSince counts incidents created for this tenant at or after
// since — backs the tenant-hour rate limit (§4.I step 3).
func (s *Store) CountCreatedSince(ctx context.Context, scope *storage.Scope, since time.Time) (int, error) {
	var n int
	err := scope.Tx().QueryRow(ctx, `SELECT COUNT(*) FROM incidents WHERE started_at >= $1`, since).Scan(&n)
	return n, storage.Classify(err)
}

// Create inserts a new Incident.
func (s *Store) Create(ctx context.Context, scope *storage.Scope, inc *Incident) error {
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	now := time.Now().UTC()
	inc.StartedAt, inc.UpdatedAt = now, now
	if inc.Status == "" {
		inc.Status = StatusOpen
	}
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO incidents
			(id, trigger_type, trigger_value, title, severity, status, calls_affected,
			 cost_delta_cents, bucket_start, started_at, updated_at, related_call_ids, auto_action)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, inc.ID, inc.TriggerType, inc.TriggerValue, inc.Title, inc.Severity, inc.Status, inc.CallsAffected,
		inc.CostDeltaCents, inc.BucketStart, inc.StartedAt, inc.UpdatedAt, inc.RelatedCallIDs, inc.AutoAction)
	return storage.Classify(err)
}

// Update persists the mutable fields of an incident already loaded via
// FindOpenInWindow.
func (s *Store) Update(ctx context.Context, scope *storage.Scope, inc *Incident) error {
	inc.UpdatedAt = time.Now().UTC()
	_, err := scope.Tx().Exec(ctx, `
		UPDATE incidents SET
			severity = $2, status = $3, calls_affected = $4, cost_delta_cents = $5,
			updated_at = $6, resolved_at = $7, related_call_ids = $8
		WHERE id = $1
	`, inc.ID, inc.Severity, inc.Status, inc.CallsAffected, inc.CostDeltaCents,
		inc.UpdatedAt, inc.ResolvedAt, inc.RelatedCallIDs)
	return storage.Classify(err)
}

// AppendEvent records one timeline entry.
func (s *Store) AppendEvent(ctx context.Context, scope *storage.Scope, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO incident_events (id, incident_id, event_type, description, data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ev.ID, ev.IncidentID, ev.EventType, ev.Description, ev.Data, ev.CreatedAt)
	return storage.Classify(err)
}

// Get fetches a single incident by id.
func (s *Store) Get(ctx context.Context, scope *storage.Scope, id uuid.UUID) (*Incident, error) {
	var inc Incident
	var relatedIDs []string
	err := scope.Tx().QueryRow(ctx, `
		SELECT id, trigger_type, trigger_value, title, severity, status,
			calls_affected, cost_delta_cents, bucket_start, started_at, updated_at,
			resolved_at, related_call_ids, auto_action
		FROM incidents
		WHERE id = $1
	`, id).Scan(
		&inc.ID, &inc.TriggerType, &inc.TriggerValue, &inc.Title, &inc.Severity, &inc.Status,
		&inc.CallsAffected, &inc.CostDeltaCents, &inc.BucketStart, &inc.StartedAt, &inc.UpdatedAt,
		&inc.ResolvedAt, &relatedIDs, &inc.AutoAction,
	)
	if err != nil {
		return nil, storage.Classify(err)
	}
	inc.RelatedCallIDs = relatedIDs
	return &inc, nil
}

// List returns incidents for the tenant, most recently started first,
// optionally filtered to a single status.
func (s *Store) List(ctx context.Context, scope *storage.Scope, status Status, limit int) ([]Incident, error) {
	const baseQuery = `
		SELECT id, trigger_type, trigger_value, title, severity, status,
			calls_affected, cost_delta_cents, bucket_start, started_at, updated_at,
			resolved_at, related_call_ids, auto_action
		FROM incidents`

	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = scope.Tx().Query(ctx, baseQuery+` WHERE status = $1 ORDER BY started_at DESC LIMIT $2`, status, limit)
	} else {
		rows, err = scope.Tx().Query(ctx, baseQuery+` ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		var relatedIDs []string
		if err := rows.Scan(&inc.ID, &inc.TriggerType, &inc.TriggerValue, &inc.Title, &inc.Severity, &inc.Status,
			&inc.CallsAffected, &inc.CostDeltaCents, &inc.BucketStart, &inc.StartedAt, &inc.UpdatedAt,
			&inc.ResolvedAt, &relatedIDs, &inc.AutoAction); err != nil {
			return nil, storage.Classify(err)
		}
		inc.RelatedCallIDs = relatedIDs
		out = append(out, inc)
	}
	return out, storage.Classify(rows.Err())
}

// StaleOpen returns every open/acknowledged incident whose updated_at is
// older than cutoff — the auto-resolve sweeper's input set.
func (s *Store) StaleOpen(ctx context.Context, scope *storage.Scope, cutoff time.Time) ([]Incident, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT id, trigger_type, trigger_value, title, severity, status,
			calls_affected, cost_delta_cents, bucket_start, started_at, updated_at,
			resolved_at, related_call_ids, auto_action
		FROM incidents
		WHERE status != $1 AND updated_at < $2
	`, StatusResolved, cutoff)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		var relatedIDs []string
		if err := rows.Scan(&inc.ID, &inc.TriggerType, &inc.TriggerValue, &inc.Title, &inc.Severity, &inc.Status,
			&inc.CallsAffected, &inc.CostDeltaCents, &inc.BucketStart, &inc.StartedAt, &inc.UpdatedAt,
			&inc.ResolvedAt, &relatedIDs, &inc.AutoAction); err != nil {
			return nil, storage.Classify(err)
		}
		inc.RelatedCallIDs = relatedIDs
		out = append(out, inc)
	}
	return out, storage.Classify(rows.Err())
}
