package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/storage"
)

const (
	outboxBatchSize  = 100
	maxOutboxRetries = 5
)

// DeliverFunc sends one outbox event downstream (webhook, message bus). It
// is the only I/O the outbox task doesn't own directly, so callers can wire
// it to whatever sink this deployment actually has.
type DeliverFunc func(ctx context.Context, ev OutboxEvent) error

// outboxTask processes pending outbox rows, delivering each through a
// circuit breaker so a downstream outage trips after repeated failures
// instead of hammering it once per tick. Partial failure re-queues the
// remainder with backoff rather than failing the whole batch.
type outboxTask struct {
	store   *Store
	adapter *storage.Adapter
	deliver DeliverFunc
	breaker *gobreaker.CircuitBreaker
}

func newOutboxTask(store *Store, adapter *storage.Adapter, deliver DeliverFunc) *outboxTask {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "maintenance.outbox.deliver",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &outboxTask{store: store, adapter: adapter, deliver: deliver, breaker: breaker}
}

func (t *outboxTask) Name() string { return "outbox" }

func (t *outboxTask) Run(ctx context.Context) error {
	scope, err := t.adapter.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	events, err := t.store.ClaimPendingOutbox(ctx, scope, outboxBatchSize)
	if err != nil {
		return fmt.Errorf("claiming outbox events: %w", err)
	}

	var firstErr error
	for _, ev := range events {
		_, deliverErr := t.breaker.Execute(func() (any, error) {
			return nil, t.deliver(ctx, ev)
		})
		if deliverErr == nil {
			if err := t.store.MarkOutboxDelivered(ctx, scope, ev.ID); err != nil {
				firstErr = errOnce(firstErr, err)
			}
			continue
		}

		attempts := ev.Attempts + 1
		if attempts >= maxOutboxRetries {
			if err := t.store.ArchiveDeadLetter(ctx, scope, ev, deliverErr.Error()); err != nil {
				firstErr = errOnce(firstErr, err)
			}
			continue
		}
		backoff := time.Duration(attempts) * time.Duration(attempts) * time.Second
		if err := t.store.RequeueOutbox(ctx, scope, ev.ID, attempts, backoff); err != nil {
			firstErr = errOnce(firstErr, err)
		}
	}

	if firstErr != nil {
		return firstErr
	}
	return scope.Commit(ctx)
}

func errOnce(existing, next error) error {
	if existing != nil {
		return existing
	}
	return next
}

const (
	dlReconcileStream  = "ward:events"
	dlReconcileGroup   = "ward-maintenance"
	dlReconcileMinIdle = 5 * time.Minute
	dlReconcileBatch   = 100
)

// dlReconcileTask XACKs orphaned pending entries on the event stream —
// messages a consumer read but never acknowledged, most often because the
// consumer crashed mid-handling. record_replay guards idempotence: if a
// crashed consumer actually finished its side effect before dying, the
// message is still only ever reconciled once.
type dlReconcileTask struct {
	rdb     *redis.Client
	store   *Store
	adapter *storage.Adapter
}

func newDLReconcileTask(rdb *redis.Client, store *Store, adapter *storage.Adapter) *dlReconcileTask {
	return &dlReconcileTask{rdb: rdb, store: store, adapter: adapter}
}

func (t *dlReconcileTask) Name() string { return "dl_reconcile" }

func (t *dlReconcileTask) Run(ctx context.Context) error {
	pending, err := t.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: dlReconcileStream,
		Group:  dlReconcileGroup,
		Start:  "-",
		End:    "+",
		Count:  dlReconcileBatch,
		Idle:   dlReconcileMinIdle,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("scanning pending stream entries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	scope, err := t.adapter.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	var acked []string
	for _, entry := range pending {
		// Stream entry IDs are stable and unique per message; derive a
		// deterministic UUID from one so replay_log's uniqueness constraint
		// works without a separate id-mapping table.
		msgID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(entry.ID))
		already, err := t.store.AlreadyReplayed(ctx, scope, msgID)
		if err != nil {
			return err
		}
		if !already {
			if err := t.store.RecordReplay(ctx, scope, msgID, "dl_reconcile"); err != nil {
				return err
			}
		}
		acked = append(acked, entry.ID)
	}
	if err := scope.Commit(ctx); err != nil {
		return err
	}

	if len(acked) > 0 {
		if err := t.rdb.XAck(ctx, dlReconcileStream, dlReconcileGroup, acked...).Err(); err != nil {
			return fmt.Errorf("acking orphaned stream entries: %w", err)
		}
	}
	return nil
}

// matviewNames lists the tenant-facing materialized views this deployment
// maintains. Adding a view here is enough to bring it under the orchestrator.
var matviewNames = []string{
	"mv_tenant_daily_spend",
	"mv_integration_health",
}

const matviewMaxAge = 10 * time.Minute

// matviewTask refreshes named materialized views whose last refresh exceeds
// matviewMaxAge, one per-view lock at a time so a slow refresh of one view
// never blocks the orchestrator's own tick from moving to the next task.
type matviewTask struct {
	store   *Store
	adapter *storage.Adapter
	locks   lockAcquirer
	ttl     time.Duration
}

func newMatviewTask(store *Store, adapter *storage.Adapter, locks lockAcquirer, ttl time.Duration) *matviewTask {
	return &matviewTask{store: store, adapter: adapter, locks: locks, ttl: ttl}
}

func (t *matviewTask) Name() string { return "matview" }

func (t *matviewTask) Run(ctx context.Context) error {
	scope, err := t.adapter.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	stale, err := t.store.StaleMatviews(ctx, scope, matviewNames, matviewMaxAge)
	if err != nil {
		return fmt.Errorf("listing stale matviews: %w", err)
	}

	holder := holderID()
	for _, view := range stale {
		acquired, lockErr := t.locks.WithLock(ctx, "matview:"+view, holder, t.ttl, func(ctx context.Context) error {
			return t.store.RefreshMatview(ctx, scope, view)
		})
		if lockErr != nil {
			return fmt.Errorf("refreshing matview %s: %w", view, lockErr)
		}
		_ = acquired // per-view lock miss simply skips this view this tick
	}
	return scope.Commit(ctx)
}

// retentionTask deletes replay_log and dead_letter_archive rows older than
// the configured retention window.
type retentionTask struct {
	store     *Store
	adapter   *storage.Adapter
	retention time.Duration
}

func newRetentionTask(store *Store, adapter *storage.Adapter, retention time.Duration) *retentionTask {
	return &retentionTask{store: store, adapter: adapter, retention: retention}
}

func (t *retentionTask) Name() string { return "retention" }

func (t *retentionTask) Run(ctx context.Context) error {
	scope, err := t.adapter.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	if _, _, err := t.store.PurgeReplayAndDeadLetter(ctx, scope, time.Now().UTC().Add(-t.retention)); err != nil {
		return fmt.Errorf("purging replay/dead-letter rows: %w", err)
	}
	return scope.Commit(ctx)
}

// lockGCTask deletes expired rows from the durable distributed_locks
// ledger — Redis itself needs no GC (keys expire on their own TTL), but the
// Postgres mirror accumulates rows until swept.
type lockGCTask struct {
	store   *Store
	adapter *storage.Adapter
}

func newLockGCTask(store *Store, adapter *storage.Adapter) *lockGCTask {
	return &lockGCTask{store: store, adapter: adapter}
}

func (t *lockGCTask) Name() string { return "lock_gc" }

func (t *lockGCTask) Run(ctx context.Context) error {
	scope, err := t.adapter.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	if _, err := t.store.PurgeExpiredLocks(ctx, scope, time.Now().UTC()); err != nil {
		return fmt.Errorf("purging expired locks: %w", err)
	}
	return scope.Commit(ctx)
}

// lockAcquirer is the slice of platform.LockService the orchestrator's tasks
// need — narrowed to keep this package decoupled from the concrete Redis
// client.
type lockAcquirer interface {
	WithLock(ctx context.Context, name, holderID string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}
