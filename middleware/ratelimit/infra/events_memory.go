package infra

import (
	"context"
	"sync"

	"vibewell-gateway/middleware/ratelimit/domain"
)

// MemoryEventStore guarda contadores por tipo/política e os eventos mais recentes.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryEventStore struct {
	mu           sync.Mutex
	byKind       map[domain.EventKind]int64
	byPolicy     map[string]map[domain.EventKind]int64
	byIdentifier map[string]int64

	recent []domain.Event
	next   int
	full   bool

	trackIdentifiers bool
}

type MemoryEventOption func(*MemoryEventStore)

// WithTrackIdentifiers liga a contagem por identificador (cuidado com cardinalidade).
func WithTrackIdentifiers(track bool) MemoryEventOption {
	return func(s *MemoryEventStore) { s.trackIdentifiers = track }
}

// WithRecent define quantos eventos recentes manter (padrão 256).
func WithRecent(n int) MemoryEventOption {
	return func(s *MemoryEventStore) {
		if n > 0 {
			s.recent = make([]domain.Event, n)
		}
	}
}

func NewMemoryEventStore(opts ...MemoryEventOption) *MemoryEventStore {
	s := &MemoryEventStore{
		byKind:       make(map[domain.EventKind]int64),
		byPolicy:     make(map[string]map[domain.EventKind]int64),
		byIdentifier: make(map[string]int64),
		recent:       make([]domain.Event, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryEventStore) Record(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byKind[ev.Kind]++
	p := s.byPolicy[ev.Policy]
	if p == nil {
		p = make(map[domain.EventKind]int64)
		s.byPolicy[ev.Policy] = p
	}
	p[ev.Kind]++
	if s.trackIdentifiers && ev.Identifier != "" {
		s.byIdentifier[ev.Identifier]++
	}

	s.recent[s.next] = ev
	s.next = (s.next + 1) % len(s.recent)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *MemoryEventStore) Count(kind domain.EventKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKind[kind]
}

func (s *MemoryEventStore) CountByPolicy(policy string, kind domain.EventKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byPolicy[policy][kind]
}

func (s *MemoryEventStore) ByIdentifier() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byIdentifier))
	for k, v := range s.byIdentifier {
		out[k] = v
	}
	return out
}

// Recent devolve os eventos retidos, do mais antigo para o mais novo.
func (s *MemoryEventStore) Recent() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		return append([]domain.Event(nil), s.recent[:s.next]...)
	}
	out := make([]domain.Event, 0, len(s.recent))
	out = append(out, s.recent[s.next:]...)
	return append(out, s.recent[:s.next]...)
}
