// Package application contém os casos de uso do rate limit: a checagem de
// admissão (janela fixa com escalada de suspeitos) e a entrega assíncrona de
// eventos de auditoria.
//
// Ele depende apenas do pacote domain (e de log/trace) e não conhece net/http.
// Ex.: Service.Check(ctx, ip, policy) retorna um Result (allow/deny + quota).
package application
