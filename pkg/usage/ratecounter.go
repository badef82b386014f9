package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateCounter implements fetch_rate_count's windowed count using Redis
// INCR + EXPIRE. This admits brief overshoot near window edges — the spec
// accepts that explicitly (§9 open question) and asks the test suite to
// treat the bound as approximate, not exact.
type RateCounter struct {
	rdb    *redis.Client
	window time.Duration
}

// NewRateCounter builds a counter keyed by integration and a fixed window
// (the Enforcement Engine uses 60 seconds).
func NewRateCounter(rdb *redis.Client, window time.Duration) *RateCounter {
	return &RateCounter{rdb: rdb, window: window}
}

func (c *RateCounter) key(integrationID string) string {
	bucket := time.Now().UTC().Unix() / int64(c.window.Seconds())
	return fmt.Sprintf("ward:rate:%s:%d", integrationID, bucket)
}

// Increment records one call against the current window and returns the
// count including this call.
func (c *RateCounter) Increment(ctx context.Context, integrationID string) (int64, error) {
	key := c.key(integrationID)
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing rate counter: %w", err)
	}
	return incr.Val(), nil
}

// Count returns the current window's count without incrementing it.
func (c *RateCounter) Count(ctx context.Context, integrationID string) (int64, error) {
	val, err := c.rdb.Get(ctx, c.key(integrationID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading rate counter: %w", err)
	}
	return val, nil
}
