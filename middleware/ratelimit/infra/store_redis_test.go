package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStore_IncrementSetsWindowOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	u, err := s.IncrementAndGet(ctx, "rl:test:1.2.3.4", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Count != 1 || u.ResetAfter != time.Minute {
		t.Fatalf("unexpected first usage: %+v", u)
	}

	mr.FastForward(10 * time.Second)
	u, _ = s.IncrementAndGet(ctx, "rl:test:1.2.3.4", time.Minute)
	if u.Count != 2 {
		t.Fatalf("expected count 2, got %d", u.Count)
	}
	if u.ResetAfter != 50*time.Second {
		t.Fatalf("expected window not to be extended, got %s", u.ResetAfter)
	}
}

func TestRedisStore_WindowExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	_, _ = s.IncrementAndGet(ctx, "k", time.Second)
	_, _ = s.IncrementAndGet(ctx, "k", time.Second)
	mr.FastForward(1100 * time.Millisecond)

	u, _ := s.IncrementAndGet(ctx, "k", time.Second)
	if u.Count != 1 {
		t.Fatalf("expected fresh window, got %d", u.Count)
	}
}

func TestRedisStore_SuspiciousFlag(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	if err := s.MarkSuspicious(ctx, "k", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("k:suspicious") {
		t.Fatalf("expected flag key to exist")
	}
	u, _ := s.IncrementAndGet(ctx, "k", time.Minute)
	if !u.Suspicious {
		t.Fatalf("expected suspicious usage")
	}

	mr.FastForward(time.Hour)
	u, _ = s.IncrementAndGet(ctx, "k", time.Minute)
	if u.Suspicious {
		t.Fatalf("expected flag to expire")
	}
}

func TestRedisStore_PeekAndReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithHashTag(true))
	ctx := context.Background()

	u, err := s.Peek(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error on empty peek: %v", err)
	}
	if u.Count != 0 {
		t.Fatalf("expected empty usage, got %+v", u)
	}

	_, _ = s.IncrementAndGet(ctx, "k", time.Minute)
	_ = s.MarkSuspicious(ctx, "k", time.Hour)

	u, err = s.Peek(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Count != 1 || !u.Suspicious || u.ResetAfter <= 0 {
		t.Fatalf("unexpected usage: %+v", u)
	}

	if err := s.Reset(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ = s.Peek(ctx, "k")
	if u.Count != 0 || u.Suspicious {
		t.Fatalf("expected reset usage, got %+v", u)
	}
	if ttl, _ := s.TTL(ctx, "k"); ttl != 0 {
		t.Fatalf("expected ttl 0 for missing key, got %s", ttl)
	}
}

func TestRedisStore_ErrorWhenUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	mr.Close()

	if _, err := s.IncrementAndGet(context.Background(), "k", time.Minute); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestRedisStore_SubMillisecondWindowStillCounts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	_, _ = s.IncrementAndGet(ctx, "k", 100*time.Microsecond)
	u, err := s.IncrementAndGet(ctx, "k", 100*time.Microsecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Count != 2 {
		t.Fatalf("expected counter to survive a sub-millisecond window, got %d", u.Count)
	}
	if !mr.Exists("k") {
		t.Fatalf("expected counter key to exist")
	}
}

func TestRedisStore_CustomSuspiciousSuffix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithSuspiciousSuffix(":flag"))
	ctx := context.Background()

	_ = s.MarkSuspicious(ctx, "k", time.Hour)
	if !mr.Exists("k:flag") || mr.Exists("k:suspicious") {
		t.Fatalf("expected flag under the custom suffix, keys=%v", mr.Keys())
	}
	u, _ := s.IncrementAndGet(ctx, "k", time.Minute)
	if !u.Suspicious {
		t.Fatalf("expected suspicious usage with custom suffix")
	}
}
