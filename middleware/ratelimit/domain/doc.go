// Package domain define contratos e tipos de domínio do rate limit:
// políticas, uso por chave, resultado de admissão, eventos de auditoria e o
// contrato do backend (QuotaStore).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (memória, Redis).
package domain
