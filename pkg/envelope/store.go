package envelope

import (
	"context"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/storage"
)

// Store persists the Envelope Coordinator's append-only audit trail
// (coordination_audit_records, kill_switch_events) in the tenant schema the
// caller's scope is bound to. The Coordinator's live envelope state stays
// in-memory per process (grounded on the original optimization coordinator's
// single-process, GIL-serialized design) — only the decision history is
// durable.
type Store struct{}

func NewStore() *Store { return &Store{} }

// InsertAudit records one CoordinationAudit decision.
func (s *Store) InsertAudit(ctx context.Context, scope *storage.Scope, a CoordinationAudit) error {
	id := a.AuditID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO coordination_audit_records
			(audit_id, envelope_id, class, decision, reason, timestamp,
			 conflicting_envelope_id, preempting_envelope_id, active_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, id, a.EnvelopeID, a.Class, a.Decision, a.Reason, a.Timestamp,
		nullIfEmpty(a.ConflictingEnvelopeID), nullIfEmpty(a.PreemptingEnvelopeID), a.ActiveCount)
	return storage.Classify(err)
}

// InsertKillSwitchEvent records one kill-switch activation.
func (s *Store) InsertKillSwitchEvent(ctx context.Context, scope *storage.Scope, e KillSwitchEvent) error {
	id := e.EventID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO kill_switch_events
			(event_id, triggered_by, trigger_reason, activated_at, rollback_status,
			 rollback_completed_at, active_envelopes_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, id, e.TriggeredBy, e.TriggerReason, e.ActivatedAt, e.RollbackStatus,
		e.RollbackCompletedAt, e.ActiveEnvelopesCount)
	return storage.Classify(err)
}

// ListAudit returns the most recent coordination audit records for the
// tenant schema the scope is bound to, newest first.
func (s *Store) ListAudit(ctx context.Context, scope *storage.Scope, limit int) ([]CoordinationAudit, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT audit_id, envelope_id, class, decision, reason, timestamp,
			COALESCE(conflicting_envelope_id, ''), COALESCE(preempting_envelope_id, ''), active_count
		FROM coordination_audit_records
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []CoordinationAudit
	for rows.Next() {
		var a CoordinationAudit
		if err := rows.Scan(&a.AuditID, &a.EnvelopeID, &a.Class, &a.Decision, &a.Reason, &a.Timestamp,
			&a.ConflictingEnvelopeID, &a.PreemptingEnvelopeID, &a.ActiveCount); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, a)
	}
	return out, storage.Classify(rows.Err())
}

// ListKillSwitchEvents returns kill-switch activations recorded for the
// tenant, newest first.
func (s *Store) ListKillSwitchEvents(ctx context.Context, scope *storage.Scope, limit int) ([]KillSwitchEvent, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT event_id, triggered_by, trigger_reason, activated_at, rollback_status,
			rollback_completed_at, active_envelopes_count
		FROM kill_switch_events
		ORDER BY activated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []KillSwitchEvent
	for rows.Next() {
		var e KillSwitchEvent
		if err := rows.Scan(&e.EventID, &e.TriggeredBy, &e.TriggerReason, &e.ActivatedAt, &e.RollbackStatus,
			&e.RollbackCompletedAt, &e.ActiveEnvelopesCount); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, e)
	}
	return out, storage.Classify(rows.Err())
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
