package domain

import (
	"sort"
	"time"
)

// Nomes da tabela de referência.
const (
	PolicyAPI           = "api"
	PolicyAuth          = "auth"
	PolicyPasswordReset = "password-reset"
	PolicySignup        = "signup"
	PolicyToken         = "token"
	PolicyFinancial     = "financial"
	PolicyAdmin         = "admin"
)

// PolicySet indexa políticas por nome.
type PolicySet map[string]Policy

// DefaultPolicies devolve a tabela canônica de políticas.
func DefaultPolicies() PolicySet {
	return NewPolicySet(
		MustPolicy(PolicyAPI, time.Minute, 60,
			WithKeyPrefix("rl:api:"),
			WithMessage("Too many requests, please try again later.")),
		MustPolicy(PolicyAuth, 15*time.Minute, 10,
			WithKeyPrefix("rl:auth:"),
			WithMessage("Too many login attempts, please try again later.")),
		MustPolicy(PolicyPasswordReset, time.Hour, 3,
			WithKeyPrefix("rl:pwreset:"),
			WithMessage("Too many password reset attempts, please try again later.")),
		MustPolicy(PolicySignup, 24*time.Hour, 5,
			WithKeyPrefix("rl:signup:"),
			WithMessage("Too many accounts created from this IP, please try again later.")),
		MustPolicy(PolicyToken, time.Minute, 5,
			WithKeyPrefix("rl:token:"),
			WithMessage("Too many token requests, please try again later.")),
		MustPolicy(PolicyFinancial, time.Hour, 10,
			WithKeyPrefix("rl:financial:"),
			WithMessage("Too many payment operations, please try again later.")),
		MustPolicy(PolicyAdmin, 5*time.Minute, 30,
			WithKeyPrefix("rl:admin:"),
			WithMessage("Too many admin operations, please try again later.")),
	)
}

func NewPolicySet(policies ...Policy) PolicySet {
	s := make(PolicySet, len(policies))
	for _, p := range policies {
		s[p.Name] = p
	}
	return s
}

func (s PolicySet) Lookup(name string) (Policy, bool) {
	p, ok := s[name]
	return p, ok
}

// Names devolve os nomes em ordem alfabética.
func (s PolicySet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
