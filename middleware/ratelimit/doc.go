// Package ratelimit fornece adapters HTTP (net/http) para o rate limit de janela fixa.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (checagem de admissão, eventos) sem net/http
//   - infra: implementações concretas (memória, Redis, sinks de eventos)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tabela de
//     rotas + tradução para status/headers + API de administração
//
// Fluxo no gateway:
//
//  1. Escolhe a política pela rota (Routes.Match, prefixo mais longo)
//  2. Extrai o identificador do cliente (header/XFF/X-Real-IP/RemoteAddr/"unknown")
//  3. Chama a camada application para obter o Result
//  4. Se negado, responde 429 com Retry-After e X-RateLimit-*
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_BACKEND, RATE_ROUTES, RATE_FAILURE_MODE e TRUST_PROXY.
package ratelimit
