// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: contadores de janela fixa em memória (desenvolvimento)
//   - RedisStore: contadores compartilhados via script Lua (INCR + PEXPIRE)
//   - ChanPool: semáforo simples para limitar gravações de eventos em voo
//   - MemoryEventStore / RedisEventStore / LogEventSink: destinos de eventos
package infra
