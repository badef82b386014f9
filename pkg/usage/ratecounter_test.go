package usage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateCounter_IncrementAndCount(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counter := NewRateCounter(rdb, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 59; i++ {
		n, err := counter.Increment(ctx, "integration-1")
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if n != int64(i) {
			t.Fatalf("count after %d increments = %d, want %d", i, n, i)
		}
	}

	count, err := counter.Count(ctx, "integration-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 59 {
		t.Errorf("count = %d, want 59 (the boundary below THROTTLED)", count)
	}

	n, err := counter.Increment(ctx, "integration-1")
	if err != nil {
		t.Fatalf("60th increment: %v", err)
	}
	if n != 60 {
		t.Errorf("60th increment = %d, want 60 (the THROTTLED boundary)", n)
	}
}

func TestRateCounter_CountWithoutActivity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counter := NewRateCounter(rdb, time.Minute)
	count, err := counter.Count(context.Background(), "unused-integration")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
