package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror persists a best-effort record of lock grants/releases for
// visibility and for the Maintenance Orchestrator's lock_gc task (§4.H) to
// sweep. Redis remains the sole locking authority: a Mirror failure is
// logged by the caller but never fails the Acquire/Release it shadows.
type Mirror interface {
	RecordGrant(ctx context.Context, name, holderID string, expiresAt time.Time) error
	RecordRelease(ctx context.Context, name, holderID string) error
}

// LockService implements component B, the Distributed Lock Service: named
// advisory locks backed by a compare-and-set primitive on Redis. At most one
// holder owns a name at any instant where clocks agree within drift
// tolerance; the TTL is the safety valve against a holder that never
// releases (crash, network partition).
type LockService struct {
	rdb    *redis.Client
	prefix string
	mirror Mirror
}

// NewLockService wraps a Redis client for named-lock acquisition/release.
func NewLockService(rdb *redis.Client) *LockService {
	return &LockService{rdb: rdb, prefix: "ward:lock:"}
}

// SetMirror attaches a durable ledger mirror. Optional; nil disables it.
func (s *LockService) SetMirror(m Mirror) {
	s.mirror = m
}

func (s *LockService) key(name string) string {
	return s.prefix + name
}

// acquireScript is atomic: it grants the lock when the key is absent (first
// holder) or already held by the same holder (reacquire/extend). A lock held
// by a different, non-expired holder is refused. Redis's own TTL expiry
// handles the "existing row is expired" branch of the contract — an expired
// key simply no longer exists when this script runs.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// releaseScript deletes the key only if the caller is still the holder of
// record, preventing a slow holder from releasing a lock someone else has
// since acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire attempts to take or extend the named lock for holderID. It returns
// true on success.
func (s *LockService) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	res, err := acquireScript.Run(ctx, s.rdb, []string{s.key(name)}, holderID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %q: %w", name, err)
	}
	acquired := res == 1
	if acquired && s.mirror != nil {
		_ = s.mirror.RecordGrant(ctx, name, holderID, time.Now().Add(ttl))
	}
	return acquired, nil
}

// Release drops the named lock if, and only if, holderID is still the owner.
// It returns true if the lock was actually released by this call.
func (s *LockService) Release(ctx context.Context, name, holderID string) (bool, error) {
	res, err := releaseScript.Run(ctx, s.rdb, []string{s.key(name)}, holderID).Int()
	if err != nil {
		return false, fmt.Errorf("releasing lock %q: %w", name, err)
	}
	released := res == 1
	if released && s.mirror != nil {
		_ = s.mirror.RecordRelease(ctx, name, holderID)
	}
	return released, nil
}

// WithLock runs fn while holding the named lock, guaranteeing release
// afterward regardless of how fn returns. It does not retry on contention —
// callers that should skip-and-move-on (like the Maintenance Orchestrator)
// get exactly that behavior by checking the returned bool.
func (s *LockService) WithLock(ctx context.Context, name, holderID string, ttl time.Duration, fn func(ctx context.Context) error) (acquired bool, err error) {
	ok, err := s.Acquire(ctx, name, holderID, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if _, relErr := s.Release(ctx, name, holderID); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return true, fn(ctx)
}
