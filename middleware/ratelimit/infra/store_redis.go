package infra

import (
	"context"
	"errors"
	"time"

	"vibewell-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// hitScript faz a checagem inteira em uma ida ao Redis:
// INCR no contador, PEXPIRE quando a janela é nova (ou perdeu o TTL),
// PTTL restante e EXISTS da flag de suspeita.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
local flagged = redis.call('EXISTS', KEYS[2])
return {count, ttl, flagged}
`)

// RedisStore implementa domain.QuotaStore sobre Redis, compartilhando os
// contadores entre instâncias. A atomicidade vem do script Lua.
type RedisStore struct {
	rdb redis.UniversalClient

	flagSuffix string
	hashTag    bool
}

type RedisStoreOption func(*RedisStore)

// WithSuspiciousSuffix define o sufixo da chave da flag de suspeita (padrão ":suspicious").
func WithSuspiciousSuffix(suffix string) RedisStoreOption {
	return func(s *RedisStore) {
		if suffix != "" {
			s.flagSuffix = suffix
		}
	}
}

// WithHashTag envolve a chave em {} para que contador e flag caiam no mesmo slot
// (Redis Cluster).
func WithHashTag(on bool) RedisStoreOption {
	return func(s *RedisStore) { s.hashTag = on }
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:        rdb,
		flagSuffix: ":suspicious",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.QuotaStore = (*RedisStore)(nil)

func (s *RedisStore) keys(key domain.Key) (counter, flag string) {
	counter = string(key)
	if s.hashTag {
		counter = "{" + counter + "}"
	}
	return counter, counter + s.flagSuffix
}

func (s *RedisStore) IncrementAndGet(ctx context.Context, key domain.Key, window time.Duration) (domain.Usage, error) {
	counter, flag := s.keys(key)

	// PEXPIRE 0 apagaria o contador: janela mínima de 1ms
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	vals, err := hitScript.Run(ctx, s.rdb, []string{counter, flag}, ms).Int64Slice()
	if err != nil {
		return domain.Usage{}, err
	}
	if len(vals) != 3 {
		return domain.Usage{}, errors.New("redis store: unexpected script reply")
	}
	return domain.Usage{
		Count:      vals[0],
		ResetAfter: time.Duration(vals[1]) * time.Millisecond,
		Suspicious: vals[2] > 0,
	}, nil
}

func (s *RedisStore) TTL(ctx context.Context, key domain.Key) (time.Duration, error) {
	counter, _ := s.keys(key)
	d, err := s.rdb.PTTL(ctx, counter).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (s *RedisStore) Peek(ctx context.Context, key domain.Key) (domain.Usage, error) {
	counter, flag := s.keys(key)

	pipe := s.rdb.Pipeline()
	get := pipe.Get(ctx, counter)
	ttl := pipe.PTTL(ctx, counter)
	exists := pipe.Exists(ctx, flag)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Usage{}, err
	}

	u := domain.Usage{Suspicious: exists.Val() > 0}
	count, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return u, nil
	}
	if err != nil {
		return domain.Usage{}, err
	}
	u.Count = count
	if d := ttl.Val(); d > 0 {
		u.ResetAfter = d
	}
	return u, nil
}

func (s *RedisStore) MarkSuspicious(ctx context.Context, key domain.Key, ttl time.Duration) error {
	_, flag := s.keys(key)
	return s.rdb.Set(ctx, flag, "1", ttl).Err()
}

func (s *RedisStore) Reset(ctx context.Context, key domain.Key) error {
	counter, flag := s.keys(key)
	return s.rdb.Del(ctx, counter, flag).Err()
}
