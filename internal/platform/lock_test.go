package platform

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLockService(t *testing.T) *LockService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLockService(rdb)
}

func TestLockService_AcquireRelease(t *testing.T) {
	svc := newTestLockService(t)
	ctx := context.Background()

	ok, err := svc.Acquire(ctx, "outbox", "worker-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// A different holder is refused while the lock is live.
	ok, err = svc.Acquire(ctx, "outbox", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second holder to be refused")
	}

	// The same holder may reacquire/extend.
	ok, err = svc.Acquire(ctx, "outbox", "worker-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("reacquire: ok=%v err=%v", ok, err)
	}

	// Release by the wrong holder is a no-op.
	released, err := svc.Release(ctx, "outbox", "worker-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatal("expected release by non-holder to fail")
	}

	released, err = svc.Release(ctx, "outbox", "worker-1")
	if err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}

	// Now a new holder can take it.
	ok, err = svc.Acquire(ctx, "outbox", "worker-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLockService_WithLock(t *testing.T) {
	svc := newTestLockService(t)
	ctx := context.Background()

	ran := false
	acquired, err := svc.WithLock(ctx, "matview", "worker-1", time.Minute, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !acquired || !ran {
		t.Fatalf("acquired=%v ran=%v err=%v", acquired, ran, err)
	}

	// Lock was released by the deferred cleanup, so a different holder can
	// take it immediately.
	acquired, err = svc.WithLock(ctx, "matview", "worker-2", time.Minute, func(ctx context.Context) error {
		return nil
	})
	if err != nil || !acquired {
		t.Fatalf("second WithLock: acquired=%v err=%v", acquired, err)
	}
}
