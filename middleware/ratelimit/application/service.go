package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"vibewell-gateway/internal/log"
	"vibewell-gateway/middleware/ratelimit/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// FailureMode decide o que fazer quando o backend falha.
type FailureMode string

const (
	// FailOpen admite a requisição (padrão): o rate limit protege contra abuso,
	// não garante corretude.
	FailOpen FailureMode = "fail-open"
	// FailClosed nega a requisição pelo tamanho da janela.
	FailClosed FailureMode = "fail-closed"
)

func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown failure mode %q (valid: fail-open|fail-closed)", s)
	}
}

// Observer recebe as decisões para métricas. Implementações devem ser baratas.
type Observer interface {
	ObserveDecision(policy string, r domain.Result)
	ObserveStoreError(policy string)
	ObserveSuspicious(policy string)
}

// Service concentra a regra de admissão do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um Result.
type Service struct {
	store        domain.QuotaStore
	mode         FailureMode
	storeTimeout time.Duration
	now          func() time.Time
	logger       log.Logger
	events       *EventDispatcher
	observer     Observer
	approaching  float64
	tracer       trace.Tracer

	// errLog limita as linhas de erro do backend para uma queda não inundar o log.
	errLog *rate.Limiter
}

type Option func(*Service)

func WithFailureMode(m FailureMode) Option {
	return func(s *Service) { s.mode = m }
}

// WithStoreTimeout limita cada ida ao backend; estourar conta como falha.
// 0 desliga o timeout próprio.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithEvents(d *EventDispatcher) Option {
	return func(s *Service) { s.events = d }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithApproachingRatio define a fração de cota restante que dispara o evento
// "approaching" (padrão 0.2). 0 desliga.
func WithApproachingRatio(r float64) Option {
	return func(s *Service) { s.approaching = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithErrorLogRate limita os logs de falha do backend (linhas por segundo, burst).
func WithErrorLogRate(perSecond float64, burst int) Option {
	return func(s *Service) { s.errLog = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func NewService(store domain.QuotaStore, opts ...Option) *Service {
	s := &Service{
		store:        store,
		mode:         FailOpen,
		storeTimeout: 250 * time.Millisecond,
		now:          time.Now,
		logger:       log.Nop(),
		approaching:  0.2,
		errLog:       rate.NewLimiter(1, 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("vibewell-gateway/ratelimit")
	}
	return s
}

func (s *Service) FailureMode() FailureMode { return s.mode }

// Check decide se a requisição do identificador é admitida pela política.
//
// Erro só é retornado para entrada inválida. Falhas do backend nunca sobem:
// são logadas e resolvidas pelo FailureMode.
func (s *Service) Check(ctx context.Context, identifier string, p domain.Policy) (domain.Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.Result{}, domain.ErrEmptyIdentifier
	}
	if err := p.Validate(); err != nil {
		return domain.Result{}, err
	}

	ctx, span := s.tracer.Start(ctx, "ratelimit.check", trace.WithAttributes(
		attribute.String("ratelimit.policy", p.Name),
	))
	defer span.End()

	now := s.now()
	key := p.Key(identifier)

	if s.store == nil {
		return s.degraded(ctx, span, p, identifier, now, nil), nil
	}

	usage, err := s.increment(ctx, key, p.Window)
	if err != nil {
		return s.degraded(ctx, span, p, identifier, now, err), nil
	}

	effectiveMax := p.EffectiveMax(usage.Suspicious)
	res := domain.Result{
		Limit:      effectiveMax,
		ResetTime:  now.Add(usage.ResetAfter),
		Suspicious: usage.Suspicious,
	}

	if usage.Count > int64(effectiveMax) {
		res.Success = false
		res.Remaining = 0
		res.RetryAfter = usage.ResetAfter
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
		s.emit(p, identifier, domain.EventExceeded, usage.Count, effectiveMax, now)

		switch {
		case !usage.Suspicious && p.SuspiciousAt(usage.Count):
			s.markSuspicious(ctx, p, identifier, key, usage.Count, now)
			res.Suspicious = true
		case usage.Suspicious && p.SuspiciousAt(usage.Count) && !p.SuspiciousAt(usage.Count-1):
			// nova violação com a flag ativa: renova o TTL uma vez por janela
			s.refreshSuspicious(ctx, p, identifier, key)
		}
	} else {
		res.Success = true
		res.Remaining = effectiveMax - int(usage.Count)
		if s.approaching > 0 && res.Remaining == int(math.Floor(float64(effectiveMax)*s.approaching)) {
			s.emit(p, identifier, domain.EventApproaching, usage.Count, effectiveMax, now)
		}
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", res.Success),
		attribute.Int("ratelimit.remaining", res.Remaining),
		attribute.Bool("ratelimit.suspicious", res.Suspicious),
	)
	if s.observer != nil {
		s.observer.ObserveDecision(p.Name, res)
	}
	return res, nil
}

// Status lê o estado do identificador sem contar a requisição.
// Diferente de Check, erros do backend são devolvidos.
func (s *Service) Status(ctx context.Context, identifier string, p domain.Policy) (domain.Result, domain.State, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.Result{}, "", domain.ErrEmptyIdentifier
	}
	if s.store == nil {
		return domain.Result{}, "", fmt.Errorf("rate limit store is not configured")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.store.Peek(ctx, p.Key(identifier))
	if err != nil {
		return domain.Result{}, "", fmt.Errorf("peek %s: %w", p.Name, err)
	}

	effectiveMax := p.EffectiveMax(u.Suspicious)
	state := domain.StateOf(u, effectiveMax)
	count := u.Count
	if state == domain.StateExpired {
		// a próxima requisição abre uma janela nova
		count = 0
	}
	remaining := effectiveMax - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := domain.Result{
		Success:    count < int64(effectiveMax),
		Limit:      effectiveMax,
		Remaining:  remaining,
		ResetTime:  s.now().Add(u.ResetAfter),
		Suspicious: u.Suspicious,
	}
	if !res.Success {
		res.RetryAfter = u.ResetAfter
	}
	return res, state, nil
}

// Reset limpa contador e flag de suspeita do identificador (desbloqueio manual).
func (s *Service) Reset(ctx context.Context, identifier string, p domain.Policy) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.ErrEmptyIdentifier
	}
	if s.store == nil {
		return fmt.Errorf("rate limit store is not configured")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.Reset(ctx, p.Key(identifier)); err != nil {
		return fmt.Errorf("reset %s: %w", p.Name, err)
	}
	s.logger.Info(ctx, "rate limit reset", "policy", p.Name, "identifier", identifier)
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) increment(ctx context.Context, key domain.Key, window time.Duration) (domain.Usage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.IncrementAndGet(ctx, key, window)
}

func (s *Service) markSuspicious(ctx context.Context, p domain.Policy, identifier string, key domain.Key, count int64, now time.Time) {
	s.logger.Warn(ctx, "rate limit: identifier flagged as suspicious",
		"policy", p.Name,
		"identifier", identifier,
		"count", count,
		"max", p.Max,
		"ttl", p.SuspiciousTTL.String(),
	)

	sctx, cancel := s.withTimeout(ctx)
	err := s.store.MarkSuspicious(sctx, key, p.SuspiciousTTL)
	cancel()
	if err != nil {
		// a negação já foi decidida; a flag é best-effort
		s.logStoreError(ctx, p, identifier, err)
	}

	if s.observer != nil {
		s.observer.ObserveSuspicious(p.Name)
	}
	s.emit(p, identifier, domain.EventSuspicious, count, p.Max, now)
}

func (s *Service) refreshSuspicious(ctx context.Context, p domain.Policy, identifier string, key domain.Key) {
	sctx, cancel := s.withTimeout(ctx)
	err := s.store.MarkSuspicious(sctx, key, p.SuspiciousTTL)
	cancel()
	if err != nil {
		s.logStoreError(ctx, p, identifier, err)
		return
	}
	s.logger.Debug(ctx, "rate limit: suspicious flag renewed", "policy", p.Name, "identifier", identifier)
}

// degraded resolve a decisão sem backend, conforme o FailureMode.
func (s *Service) degraded(ctx context.Context, span trace.Span, p domain.Policy, identifier string, now time.Time, err error) domain.Result {
	if err == nil {
		err = fmt.Errorf("rate limit store is not configured")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "store failure")

	s.logStoreError(ctx, p, identifier, err)
	if s.observer != nil {
		s.observer.ObserveStoreError(p.Name)
	}
	s.emit(p, identifier, domain.EventStoreError, 0, p.Max, now)

	var res domain.Result
	if s.mode == FailClosed {
		res = domain.Result{
			Success:    false,
			Limit:      p.Max,
			Remaining:  0,
			ResetTime:  now.Add(p.Window),
			RetryAfter: p.Window,
			Degraded:   true,
		}
	} else {
		res = domain.Result{
			Success:   true,
			Limit:     p.Max,
			Remaining: p.Max - 1,
			ResetTime: now.Add(p.Window),
			Degraded:  true,
		}
	}
	span.SetAttributes(attribute.Bool("ratelimit.allowed", res.Success), attribute.Bool("ratelimit.degraded", true))
	if s.observer != nil {
		s.observer.ObserveDecision(p.Name, res)
	}
	return res
}

func (s *Service) logStoreError(ctx context.Context, p domain.Policy, identifier string, err error) {
	if s.errLog != nil && !s.errLog.Allow() {
		return
	}
	s.logger.Error(ctx, err, "rate limit store failure",
		"policy", p.Name,
		"identifier", identifier,
		"failure_mode", string(s.mode),
	)
}

func (s *Service) emit(p domain.Policy, identifier string, kind domain.EventKind, count int64, limit int, at time.Time) {
	if s.events == nil {
		return
	}
	s.events.Dispatch(domain.Event{
		Kind:       kind,
		Policy:     p.Name,
		Identifier: identifier,
		Count:      count,
		Limit:      limit,
		At:         at,
	})
}
