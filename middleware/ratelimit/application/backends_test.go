package application

import (
	"context"
	"testing"
	"time"

	"vibewell-gateway/middleware/ratelimit/domain"
	"vibewell-gateway/middleware/ratelimit/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// backend monta um store e um avanço de tempo que move o relógio do Service e
// o TTL do backend juntos.
type backend struct {
	name string
	new  func(t *testing.T) (store domain.QuotaStore, clk *fakeClock, advance func(time.Duration), stop func())
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			new: func(t *testing.T) (domain.QuotaStore, *fakeClock, func(time.Duration), func()) {
				clk := newFakeClock()
				return infra.NewMemoryStore(infra.WithClock(clk.Now)), clk, clk.Advance, nil
			},
		},
		{
			name: "redis",
			new: func(t *testing.T) (domain.QuotaStore, *fakeClock, func(time.Duration), func()) {
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
				t.Cleanup(func() { _ = rdb.Close() })
				clk := newFakeClock()
				advance := func(d time.Duration) {
					clk.Advance(d)
					mr.FastForward(d)
				}
				return infra.NewRedisStore(rdb), clk, advance, mr.Close
			},
		},
	}
}

func TestBackends_RemainingCountsDownThenDenies(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store, clk, _, _ := b.new(t)
			svc := NewService(store, WithClock(clk.Now))
			p := domain.MustPolicy("test", time.Minute, 5)
			ctx := context.Background()

			for i, want := range []int{4, 3, 2, 1, 0} {
				res, err := svc.Check(ctx, "1.2.3.4", p)
				if err != nil || !res.Success || res.Remaining != want || res.Degraded {
					t.Fatalf("request %d: expected allowed with remaining %d, got %+v (%v)", i+1, want, res, err)
				}
			}
			res, _ := svc.Check(ctx, "1.2.3.4", p)
			if res.Success || res.RetryAfterSeconds() <= 0 || res.RetryAfterSeconds() > 60 {
				t.Fatalf("request 6 should be denied with retry in (0,60], got %+v", res)
			}
		})
	}
}

func TestBackends_EscalationTightensNextWindow(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store, clk, advance, _ := b.new(t)
			svc := NewService(store, WithClock(clk.Now))
			p := domain.MustPolicy("test", time.Minute, 5)
			ctx := context.Background()

			var last domain.Result
			for i := 0; i < 8; i++ {
				last, _ = svc.Check(ctx, "1.2.3.4", p)
			}
			if !last.Suspicious {
				t.Fatalf("request 8 should flag the identifier")
			}

			advance(time.Minute)
			res, _ := svc.Check(ctx, "1.2.3.4", p)
			if !res.Success || res.Limit != 2 || res.Remaining != 1 || !res.Suspicious {
				t.Fatalf("expected effective max 2 in next window, got %+v", res)
			}
			_, _ = svc.Check(ctx, "1.2.3.4", p)
			if res, _ := svc.Check(ctx, "1.2.3.4", p); res.Success {
				t.Fatalf("third request should be denied under suspicious quota")
			}
		})
	}
}

func TestBackends_RepeatedAbuseRenewsSuspiciousFlag(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store, clk, advance, _ := b.new(t)
			svc := NewService(store, WithClock(clk.Now))
			p := domain.MustPolicy("test", time.Minute, 5)
			ctx := context.Background()

			// flag em T0
			for i := 0; i < 8; i++ {
				_, _ = svc.Check(ctx, "1.2.3.4", p)
			}

			// volta a abusar em T0+23h, com a flag ainda ativa
			advance(23 * time.Hour)
			for i := 0; i < 20; i++ {
				_, _ = svc.Check(ctx, "1.2.3.4", p)
			}

			// T0+25h: a flag original teria vencido, a renovada não
			advance(2 * time.Hour)
			res, _ := svc.Check(ctx, "1.2.3.4", p)
			if !res.Suspicious || res.Limit != 2 {
				t.Fatalf("expected identifier to stay suspicious after renewed abuse, got %+v", res)
			}

			// sem novas violações, a flag cai 24h depois da última
			advance(24 * time.Hour)
			res, _ = svc.Check(ctx, "1.2.3.4", p)
			if res.Suspicious || res.Limit != 5 {
				t.Fatalf("expected flag to clear 24h after the last breach, got %+v", res)
			}
		})
	}
}

func TestBackends_FailOpenWhenRedisGoesAway(t *testing.T) {
	var redisBackend backend
	for _, b := range backends() {
		if b.name == "redis" {
			redisBackend = b
		}
	}
	store, clk, _, stop := redisBackend.new(t)
	svc := NewService(store, WithClock(clk.Now), WithStoreTimeout(200*time.Millisecond))
	p := domain.MustPolicy("test", time.Minute, 1)
	ctx := context.Background()

	_, _ = svc.Check(ctx, "a", p)
	stop()

	for i := 0; i < 3; i++ {
		res, err := svc.Check(ctx, "a", p)
		if err != nil {
			t.Fatalf("store error must not escape, got %v", err)
		}
		if !res.Success || !res.Degraded {
			t.Fatalf("expected degraded admit after redis went away, got %+v", res)
		}
	}
}
