package application

import (
	"context"
	"sync"
	"time"

	"vibewell-gateway/internal/log"
	"vibewell-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
)

// EventDispatcher entrega eventos ao sink em background (fire-and-forget).
//
// O número de gravações em voo é limitado por um SlotPool. Sem vaga dentro de
// AcquireTimeout o evento é descartado: a entrega nunca segura a decisão de admissão.
type EventDispatcher struct {
	sink           domain.EventSink
	pool           domain.SlotPool
	acquireTimeout time.Duration
	writeTimeout   time.Duration
	logger         log.Logger
	onDrop         func(domain.Event)

	// mu protege closed contra o wg.Add de Dispatch concorrente com Wait.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type DispatcherOption func(*EventDispatcher)

// WithPool define o limitador de gravações em voo.
func WithPool(p domain.SlotPool) DispatcherOption {
	return func(d *EventDispatcher) { d.pool = p }
}

// WithAcquireTimeout define quanto esperar por uma vaga; <= 0 não espera.
func WithAcquireTimeout(t time.Duration) DispatcherOption {
	return func(d *EventDispatcher) { d.acquireTimeout = t }
}

func WithWriteTimeout(t time.Duration) DispatcherOption {
	return func(d *EventDispatcher) { d.writeTimeout = t }
}

func WithDispatcherLogger(l log.Logger) DispatcherOption {
	return func(d *EventDispatcher) { d.logger = l }
}

func WithOnDrop(fn func(domain.Event)) DispatcherOption {
	return func(d *EventDispatcher) { d.onDrop = fn }
}

func NewEventDispatcher(sink domain.EventSink, opts ...DispatcherOption) *EventDispatcher {
	d := &EventDispatcher{
		sink:         sink,
		writeTimeout: 2 * time.Second,
		logger:       log.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch agenda a gravação do evento. Preenche ID e At quando vazios.
func (d *EventDispatcher) Dispatch(ev domain.Event) {
	if d == nil || d.sink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev)
		return
	}

	release, ok := d.acquire()
	if !ok {
		d.drop(ev)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer release()

		ctx := context.Background()
		if d.writeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.writeTimeout)
			defer cancel()
		}
		if err := d.sink.Record(ctx, ev); err != nil {
			d.logger.Error(ctx, err, "rate limit event write failed", "kind", string(ev.Kind), "policy", ev.Policy)
		}
	}()
}

func (d *EventDispatcher) acquire() (func(), bool) {
	if d.pool == nil {
		return func() {}, true
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.acquireTimeout)
	defer cancel()
	return d.pool.Acquire(ctx)
}

func (d *EventDispatcher) drop(ev domain.Event) {
	if d.onDrop != nil {
		d.onDrop(ev)
	}
}

// Wait fecha o dispatcher e bloqueia até as entregas em voo terminarem (shutdown).
// Eventos despachados depois disso são descartados.
func (d *EventDispatcher) Wait() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
