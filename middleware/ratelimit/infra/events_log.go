package infra

import (
	"context"
	"errors"

	"vibewell-gateway/internal/log"
	"vibewell-gateway/middleware/ratelimit/domain"
)

// LogEventSink escreve cada evento como uma linha de log estruturado.
// Suspeita sobe para warn; o resto é info.
type LogEventSink struct {
	Logger log.Logger
}

func (s LogEventSink) Record(ctx context.Context, ev domain.Event) error {
	if s.Logger == nil {
		return nil
	}
	kv := []any{
		"event_id", ev.ID,
		"kind", string(ev.Kind),
		"policy", ev.Policy,
		"identifier", ev.Identifier,
		"count", ev.Count,
		"limit", ev.Limit,
	}
	switch ev.Kind {
	case domain.EventSuspicious, domain.EventStoreError:
		s.Logger.Warn(ctx, "rate limit event", kv...)
	default:
		s.Logger.Info(ctx, "rate limit event", kv...)
	}
	return nil
}

// FanoutSink entrega o evento a todos os sinks e junta os erros.
type FanoutSink []domain.EventSink

func (f FanoutSink) Record(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
