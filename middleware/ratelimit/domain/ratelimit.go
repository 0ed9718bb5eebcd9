package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"math"
	"time"
)

type Key string

// Usage é o estado de uma chave devolvido pelo backend em uma ida e volta.
type Usage struct {
	// Count é a contagem na janela atual. Nunca diminui dentro da janela.
	Count int64
	// ResetAfter é o tempo até a virada da janela.
	ResetAfter time.Duration
	// Suspicious indica que a flag independente de suspeita está ativa.
	Suspicious bool
}

// QuotaStore é a estratégia de persistência dos contadores.
//
// IncrementAndGet deve ser atômico: incrementa e, se não houver janela ativa,
// inicia uma nova com duração `window`. Implementações devem ser seguras para
// uso concorrente.
type QuotaStore interface {
	IncrementAndGet(ctx context.Context, key Key, window time.Duration) (Usage, error)
	TTL(ctx context.Context, key Key) (time.Duration, error)
	// Peek lê sem contar. Uma janela vencida que o backend ainda guarda volta
	// com Count > 0 e ResetAfter 0; backends que expiram a chave (Redis) devolvem
	// Count 0, e o estado cai direto em "new".
	Peek(ctx context.Context, key Key) (Usage, error)
	MarkSuspicious(ctx context.Context, key Key, ttl time.Duration) error
	Reset(ctx context.Context, key Key) error
}

// Result é a decisão de uma checagem de admissão. Efêmero; não é persistido.
type Result struct {
	Success   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	// RetryAfter só é preenchido em negações.
	RetryAfter time.Duration
	Suspicious bool
	// Degraded indica que a decisão foi tomada sem o backend (falha do store).
	Degraded bool
}

// RetryAfterSeconds arredonda RetryAfter para cima, nunca negativo.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// State é o ciclo de vida de um par (política, identificador).
type State string

const (
	StateNew     State = "new"
	StateActive  State = "active"
	StateAtLimit State = "at_limit"
	StateExpired State = "expired"
)

// StateOf deriva o estado a partir do uso corrente e da cota efetiva.
func StateOf(u Usage, effectiveMax int) State {
	switch {
	case u.Count == 0:
		return StateNew
	case u.ResetAfter <= 0:
		return StateExpired
	case u.Count >= int64(effectiveMax):
		return StateAtLimit
	default:
		return StateActive
	}
}
