package infra

import (
	"context"
	"sync/atomic"

	"vibewell-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo baseado em channel com capacidade fixa.
type ChanPool struct {
	sem      chan struct{}
	inFlight atomic.Int64
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria um pool com capacidade `max` (mínimo 1).
func NewChanPool(max int) *ChanPool {
	if max <= 0 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
	default:
		// sem vaga livre: espera até o ctx encerrar
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, false
		}
	}
	p.inFlight.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			p.inFlight.Add(-1)
			<-p.sem
		}
	}, true
}

func (p *ChanPool) InFlight() int { return int(p.inFlight.Load()) }

func (p *ChanPool) Cap() int { return cap(p.sem) }
