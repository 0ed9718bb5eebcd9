package domain

import "context"

// SlotPool limita quantas gravações de eventos ficam em voo ao mesmo tempo.
//
// Acquire espera por uma vaga até o ctx encerrar; ok=false significa que o
// chamador deve descartar o trabalho. O release devolvido vale uma única vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
