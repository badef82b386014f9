package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/wardctl/ward/internal/platform"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/storage"
)

// holderID builds the worker:host:pid:nonce holder identity §4.H specifies
// for lock acquisition, so concurrent orchestrator instances (or concurrent
// runs of the same one) never mistake each other for the same holder.
func holderID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("worker:%s:%d:%s", host, os.Getpid(), uuid.NewString())
}

// Orchestrator runs the five ordered maintenance tasks under a single
// cron-scheduled trigger. It never retries a task within a tick — a lock
// miss is skipped, a timeout is failed — and one task's outcome never
// blocks the next.
type Orchestrator struct {
	cron    *cron.Cron
	tasks   []Task
	locks   lockAcquirer
	lockTTL time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// New assembles the five ordered tasks and the cron trigger that runs them.
// deliver is the outbox task's downstream sink.
func New(
	adapter *storage.Adapter,
	locks *platform.LockService,
	rdb *redis.Client,
	cronSpec string,
	lockTTL, taskTimeout time.Duration,
	retention time.Duration,
	deliver DeliverFunc,
	logger *slog.Logger,
) (*Orchestrator, error) {
	store := NewStore()

	o := &Orchestrator{
		cron:    cron.New(),
		locks:   locks,
		lockTTL: lockTTL,
		timeout: taskTimeout,
		logger:  logger,
		tasks: []Task{
			newOutboxTask(store, adapter, deliver),
			newDLReconcileTask(rdb, store, adapter),
			newMatviewTask(store, adapter, locks, lockTTL),
			newRetentionTask(store, adapter, retention),
			newLockGCTask(store, adapter),
		},
	}

	if _, err := o.cron.AddFunc(cronSpec, func() {
		o.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("scheduling maintenance cron %q: %w", cronSpec, err)
	}
	return o, nil
}

// Start begins the cron trigger. It returns immediately; the trigger runs on
// its own goroutine until Stop is called.
func (o *Orchestrator) Start() {
	o.cron.Start()
}

// Stop halts the cron trigger and waits for any in-flight tick to finish.
func (o *Orchestrator) Stop() {
	<-o.cron.Stop().Done()
}

// RunOnce runs every task in order exactly once, in the fixed sequence
// outbox → dl_reconcile → matview → retention → lock_gc. It is exported so
// callers (tests, a manual "run maintenance now" CLI mode) can drive a tick
// outside the cron schedule.
func (o *Orchestrator) RunOnce(ctx context.Context) []Result {
	results := make([]Result, 0, len(o.tasks))
	for _, task := range o.tasks {
		results = append(results, o.runTask(ctx, task))
	}
	return results
}

func (o *Orchestrator) runTask(ctx context.Context, task Task) Result {
	started := time.Now()
	name := task.Name()
	holder := holderID()

	result := Result{Task: name, Started: started}
	acquired, err := o.locks.WithLock(ctx, name, holder, o.lockTTL, func(ctx context.Context) error {
		taskCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		return task.Run(taskCtx)
	})

	result.Duration = time.Since(started)
	switch {
	case err != nil:
		result.Outcome = OutcomeFailed
		if errors.Is(err, context.DeadlineExceeded) {
			result.Reason = "timeout"
		} else {
			result.Reason = err.Error()
		}
		o.logger.Error("maintenance task failed", "task", name, "reason", result.Reason, "duration_ms", result.Duration.Milliseconds())
	case !acquired:
		result.Outcome = OutcomeSkipped
		result.Reason = "lock_held"
		o.logger.Debug("maintenance task skipped, lock held", "task", name)
	default:
		result.Outcome = OutcomeOK
		o.logger.Info("maintenance task completed", "task", name, "duration_ms", result.Duration.Milliseconds())
	}

	telemetry.MaintenanceTaskDuration.WithLabelValues(name).Observe(result.Duration.Seconds())
	telemetry.MaintenanceTaskOutcomesTotal.WithLabelValues(name, string(result.Outcome)).Inc()
	if result.Outcome == OutcomeSkipped {
		telemetry.LockContentionTotal.WithLabelValues(name).Inc()
	}
	return result
}
