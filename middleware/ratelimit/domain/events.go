package domain

import (
	"context"
	"time"
)

type EventKind string

const (
	EventExceeded    EventKind = "exceeded"
	EventApproaching EventKind = "approaching"
	EventSuspicious  EventKind = "suspicious"
	EventStoreError  EventKind = "store-error"
)

// Event é um registro de auditoria do rate limit (append-only).
//
// Não participa de decisões de admissão; serve para observabilidade/alertas.
// Cuidado com cardinalidade ao indexar por Identifier.
type Event struct {
	ID         string
	Kind       EventKind
	Policy     string
	Identifier string
	Count      int64
	Limit      int
	At         time.Time
}

// EventSink persiste eventos. Erro é tratado como best-effort pelo chamador.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}
