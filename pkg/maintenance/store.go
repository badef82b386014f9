package maintenance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/storage"
)

// OutboxEvent is one downstream-delivery envelope awaiting dispatch to an
// external sink (webhook, message bus) independent of the request that
// produced it.
type OutboxEvent struct {
	ID            uuid.UUID
	EventType     string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// Store is the Maintenance Orchestrator's data access: every table it reads
// and writes lives in the global (public) schema, not a tenant schema — the
// outbox, replay log, dead-letter archive, and lock ledger are cross-tenant
// infrastructure, so the scope used here is never search_path-scoped the way
// request-handling scopes are.
type Store struct{}

func NewStore() *Store { return &Store{} }

// ClaimPendingOutbox locks up to limit ready (next_attempt_at <= now),
// undelivered events for this worker using SKIP LOCKED so concurrent
// orchestrator instances never double-process a row.
func (s *Store) ClaimPendingOutbox(ctx context.Context, scope *storage.Scope, limit int) ([]OutboxEvent, error) {
	rows, err := scope.Tx().Query(ctx, `
		SELECT id, event_type, payload, attempts, next_attempt_at, created_at
		FROM outbox_events
		WHERE delivered_at IS NULL AND next_attempt_at <= now()
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.Attempts, &ev.NextAttemptAt, &ev.CreatedAt); err != nil {
			return nil, storage.Classify(err)
		}
		out = append(out, ev)
	}
	return out, storage.Classify(rows.Err())
}

// MarkOutboxDelivered stamps delivered_at on a successfully delivered event;
// the row stays in outbox_events.
func (s *Store) MarkOutboxDelivered(ctx context.Context, scope *storage.Scope, id uuid.UUID) error {
	_, err := scope.Tx().Exec(ctx, `UPDATE outbox_events SET delivered_at = now() WHERE id = $1`, id)
	return storage.Classify(err)
}

// RequeueOutbox sets an event's attempt count and schedules its next try
// backoff from now, keeping the remainder of a partially-failed batch in
// play for the next tick.
func (s *Store) RequeueOutbox(ctx context.Context, scope *storage.Scope, id uuid.UUID, attempts int, backoff time.Duration) error {
	_, err := scope.Tx().Exec(ctx, `
		UPDATE outbox_events SET attempts = $2, next_attempt_at = now() + $3
		WHERE id = $1
	`, id, attempts, backoff)
	return storage.Classify(err)
}

// ArchiveDeadLetter moves an event that exhausted its retry budget into the
// dead-letter archive and records the move in the replay log keyed by the
// event's own id, so archiving the same event id twice is a no-op rather
// than a duplicate archive entry.
func (s *Store) ArchiveDeadLetter(ctx context.Context, scope *storage.Scope, ev OutboxEvent, reason string) error {
	if _, err := scope.Tx().Exec(ctx, `
		INSERT INTO dead_letter_archive (id, event_type, payload, attempts, reason, archived_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.EventType, ev.Payload, ev.Attempts, reason); err != nil {
		return storage.Classify(err)
	}
	if err := s.RecordReplay(ctx, scope, ev.ID, "dead_letter"); err != nil {
		return err
	}
	_, err := scope.Tx().Exec(ctx, `DELETE FROM outbox_events WHERE id = $1`, ev.ID)
	return storage.Classify(err)
}

// RecordReplay inserts an idempotence marker for messageID. A conflict means
// this message has already been reconciled or archived, and the caller
// should treat the operation as already-applied rather than retry it.
func (s *Store) RecordReplay(ctx context.Context, scope *storage.Scope, messageID uuid.UUID, origin string) error {
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO replay_log (message_id, origin, replayed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, origin)
	return storage.Classify(err)
}

// AlreadyReplayed reports whether messageID has a replay_log row already.
func (s *Store) AlreadyReplayed(ctx context.Context, scope *storage.Scope, messageID uuid.UUID) (bool, error) {
	var exists bool
	err := scope.Tx().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM replay_log WHERE message_id = $1)`, messageID).Scan(&exists)
	return exists, storage.Classify(err)
}

// StaleMatviews returns the tracked views whose last refresh is older than
// maxAge, or that have never been refreshed.
func (s *Store) StaleMatviews(ctx context.Context, scope *storage.Scope, names []string, maxAge time.Duration) ([]string, error) {
	var stale []string
	for _, name := range names {
		var refreshedAt *time.Time
		err := scope.Tx().QueryRow(ctx, `SELECT refreshed_at FROM maintenance_matviews WHERE view_name = $1`, name).Scan(&refreshedAt)
		if err != nil && storage.IsTransient(storage.Classify(err)) {
			return nil, storage.Classify(err)
		}
		if refreshedAt == nil || time.Since(*refreshedAt) > maxAge {
			stale = append(stale, name)
		}
	}
	return stale, nil
}

// RefreshMatview runs REFRESH MATERIALIZED VIEW CONCURRENTLY against name
// and records the refresh time. name is never user input — it is drawn from
// the orchestrator's own fixed view registry.
func (s *Store) RefreshMatview(ctx context.Context, scope *storage.Scope, name string) error {
	if _, err := scope.Tx().Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY `+name); err != nil {
		return storage.Classify(err)
	}
	_, err := scope.Tx().Exec(ctx, `
		INSERT INTO maintenance_matviews (view_name, refreshed_at) VALUES ($1, now())
		ON CONFLICT (view_name) DO UPDATE SET refreshed_at = now()
	`, name)
	return storage.Classify(err)
}

// PurgeReplayAndDeadLetter deletes replay_log and dead_letter_archive rows
// older than cutoff, returning the counts removed from each.
func (s *Store) PurgeReplayAndDeadLetter(ctx context.Context, scope *storage.Scope, cutoff time.Time) (replayDeleted, deadLetterDeleted int64, err error) {
	tag, err := scope.Tx().Exec(ctx, `DELETE FROM replay_log WHERE replayed_at < $1`, cutoff)
	if err != nil {
		return 0, 0, storage.Classify(err)
	}
	replayDeleted = tag.RowsAffected()

	tag, err = scope.Tx().Exec(ctx, `DELETE FROM dead_letter_archive WHERE archived_at < $1`, cutoff)
	if err != nil {
		return replayDeleted, 0, storage.Classify(err)
	}
	deadLetterDeleted = tag.RowsAffected()
	return replayDeleted, deadLetterDeleted, nil
}

// PurgeExpiredLocks deletes distributed_locks rows past their expiry. The
// live lock authority is Redis (§4.B); this table is the durable ledger of
// lock history the Distributed Lock Service mirrors its grants into, and
// lock_gc is its cleanup sweep.
func (s *Store) PurgeExpiredLocks(ctx context.Context, scope *storage.Scope, now time.Time) (int64, error) {
	tag, err := scope.Tx().Exec(ctx, `DELETE FROM distributed_locks WHERE expires_at < $1`, now)
	if err != nil {
		return 0, storage.Classify(err)
	}
	return tag.RowsAffected(), nil
}
