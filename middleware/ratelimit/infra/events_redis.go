package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vibewell-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisEventStore grava eventos no Redis:
//
//   - <prefix>:total          hash kind -> contagem (cumulativo, não expira)
//   - <prefix>:minute:<ts>    hash kind -> contagem por minuto (expira em ttl)
//   - <prefix>:policy         hash "<policy>:<kind>" -> contagem
//   - <prefix>:stream         stream de auditoria (append-only, MAXLEN aproximado)
type RedisEventStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	ttl       time.Duration
	streamLen int64
}

type RedisEventOption func(*RedisEventStore)

func WithEventsPrefix(prefix string) RedisEventOption {
	return func(s *RedisEventStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithEventsTTL(d time.Duration) RedisEventOption {
	return func(s *RedisEventStore) { s.ttl = d }
}

// WithStreamMaxLen limita o stream de auditoria; 0 desliga o stream.
func WithStreamMaxLen(n int64) RedisEventOption {
	return func(s *RedisEventStore) { s.streamLen = n }
}

func NewRedisEventStore(rdb redis.UniversalClient, opts ...RedisEventOption) *RedisEventStore {
	s := &RedisEventStore{
		rdb:       rdb,
		prefix:    "ratelimit:events",
		ttl:       24 * time.Hour,
		streamLen: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisEventStore) Record(ctx context.Context, ev domain.Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Kind)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if p := strings.TrimSpace(ev.Policy); p != "" {
		pipe.HIncrBy(ctx, s.prefix+":policy", p+":"+field, 1)
	}

	if s.streamLen > 0 {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.prefix + ":stream",
			MaxLen: s.streamLen,
			Approx: true,
			Values: map[string]any{
				"id":         ev.ID,
				"kind":       field,
				"policy":     ev.Policy,
				"identifier": ev.Identifier,
				"count":      ev.Count,
				"limit":      ev.Limit,
				"at":         at.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	_, err := pipe.Exec(ctx)
	return err
}
