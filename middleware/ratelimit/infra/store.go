package infra

import (
	"context"
	"sync"
	"time"

	"vibewell-gateway/middleware/ratelimit/domain"
)

// MemoryStore é uma implementação em memória de domain.QuotaStore com janela fixa
// por chave e limpeza periódica.
//
// O estado se perde ao reiniciar e não é compartilhado entre instâncias: serve
// apenas para desenvolvimento local ou instância única.
type MemoryStore struct {
	mu           sync.Mutex
	windows      map[domain.Key]*window
	flags        map[domain.Key]time.Time
	now          func() time.Time
	cleanupEvery time.Duration
}

type window struct {
	count   int64
	resetAt time.Time
}

type StoreOption func(*MemoryStore)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:      make(map[domain.Key]*window),
		flags:        make(map[domain.Key]time.Time),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.QuotaStore = (*MemoryStore)(nil)

func (s *MemoryStore) IncrementAndGet(_ context.Context, key domain.Key, d time.Duration) (domain.Usage, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(d)}
		s.windows[key] = w
	}
	w.count++

	return domain.Usage{
		Count:      w.count,
		ResetAfter: w.resetAt.Sub(now),
		Suspicious: s.flaggedLocked(key, now),
	}, nil
}

func (s *MemoryStore) TTL(_ context.Context, key domain.Key) (time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		return 0, nil
	}
	return w.resetAt.Sub(now), nil
}

func (s *MemoryStore) Peek(_ context.Context, key domain.Key) (domain.Usage, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	u := domain.Usage{Suspicious: s.flaggedLocked(key, now)}
	if w, ok := s.windows[key]; ok {
		// janela vencida ainda não limpa: Count > 0 com ResetAfter 0 (expirada)
		u.Count = w.count
		if now.Before(w.resetAt) {
			u.ResetAfter = w.resetAt.Sub(now)
		}
	}
	return u, nil
}

func (s *MemoryStore) MarkSuspicious(_ context.Context, key domain.Key, ttl time.Duration) error {
	until := s.now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags[key] = until
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	delete(s.flags, key)
	return nil
}

func (s *MemoryStore) flaggedLocked(key domain.Key, now time.Time) bool {
	until, ok := s.flags[key]
	return ok && now.Before(until)
}

// Len devolve o número de janelas mantidas (inclui expiradas ainda não limpas).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Cleanup remove janelas e flags expiradas.
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
	for k, until := range s.flags {
		if !now.Before(until) {
			delete(s.flags, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
