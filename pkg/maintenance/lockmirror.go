package maintenance

import (
	"context"
	"time"

	"github.com/wardctl/ward/internal/platform"
	"github.com/wardctl/ward/pkg/storage"
)

// LockMirror implements platform.Mirror, writing Redis lock grants/releases
// into the durable distributed_locks ledger lock_gc sweeps. Each call is its
// own short-lived scope since it runs outside any request or task
// transaction.
type LockMirror struct {
	storage *storage.Adapter
}

func NewLockMirror(adapter *storage.Adapter) *LockMirror {
	return &LockMirror{storage: adapter}
}

var _ platform.Mirror = (*LockMirror)(nil)

func (m *LockMirror) RecordGrant(ctx context.Context, name, holderID string, expiresAt time.Time) error {
	scope, err := m.storage.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := scope.Tx().Exec(ctx, `
		INSERT INTO distributed_locks (lock_name, holder_id, acquired_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (lock_name) DO UPDATE SET holder_id = $2, acquired_at = now(), expires_at = $3
	`, name, holderID, expiresAt); err != nil {
		_ = scope.Rollback(ctx)
		return storage.Classify(err)
	}
	return scope.Commit(ctx)
}

func (m *LockMirror) RecordRelease(ctx context.Context, name, holderID string) error {
	scope, err := m.storage.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := scope.Tx().Exec(ctx, `
		DELETE FROM distributed_locks WHERE lock_name = $1 AND holder_id = $2
	`, name, holderID); err != nil {
		_ = scope.Rollback(ctx)
		return storage.Classify(err)
	}
	return scope.Commit(ctx)
}
