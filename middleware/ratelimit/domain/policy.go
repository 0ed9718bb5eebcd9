package domain

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBurstMultiplier     = 2.0
	DefaultSuspiciousThreshold = 1.5
	DefaultSuspiciousTTL       = 24 * time.Hour
)

// Policy é uma configuração nomeada de janela fixa.
//
// É um valor imutável: construa com NewPolicy (que valida) e passe por cópia.
type Policy struct {
	Name       string
	Window     time.Duration
	Max        int
	KeyPrefix  string
	Message    string
	StatusCode int

	// BurstMultiplier divide Max enquanto o identificador estiver marcado como suspeito.
	BurstMultiplier float64
	// TrackSuspicious liga a escalada: ao atingir Max*SuspiciousThreshold na mesma
	// janela, o identificador fica suspeito por SuspiciousTTL.
	TrackSuspicious     bool
	SuspiciousThreshold float64
	SuspiciousTTL       time.Duration
}

type PolicyOption func(*Policy)

func WithKeyPrefix(prefix string) PolicyOption {
	return func(p *Policy) { p.KeyPrefix = prefix }
}

func WithMessage(msg string) PolicyOption {
	return func(p *Policy) { p.Message = msg }
}

func WithStatusCode(code int) PolicyOption {
	return func(p *Policy) { p.StatusCode = code }
}

func WithBurstMultiplier(m float64) PolicyOption {
	return func(p *Policy) { p.BurstMultiplier = m }
}

// WithSuspicious liga/desliga a escalada de IP suspeito.
func WithSuspicious(track bool) PolicyOption {
	return func(p *Policy) { p.TrackSuspicious = track }
}

func WithSuspiciousThreshold(f float64) PolicyOption {
	return func(p *Policy) { p.SuspiciousThreshold = f }
}

func WithSuspiciousTTL(d time.Duration) PolicyOption {
	return func(p *Policy) { p.SuspiciousTTL = d }
}

// NewPolicy cria e valida uma política. Falha cedo com ErrInvalidPolicy.
func NewPolicy(name string, window time.Duration, max int, opts ...PolicyOption) (Policy, error) {
	p := Policy{
		Name:                strings.TrimSpace(name),
		Window:              window,
		Max:                 max,
		StatusCode:          http.StatusTooManyRequests,
		Message:             "Too many requests, please try again later.",
		BurstMultiplier:     DefaultBurstMultiplier,
		TrackSuspicious:     true,
		SuspiciousThreshold: DefaultSuspiciousThreshold,
		SuspiciousTTL:       DefaultSuspiciousTTL,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.KeyPrefix == "" && p.Name != "" {
		p.KeyPrefix = "rl:" + p.Name + ":"
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// MustPolicy é NewPolicy para tabelas estáticas; entra em pânico se inválida.
func MustPolicy(name string, window time.Duration, max int, opts ...PolicyOption) Policy {
	p, err := NewPolicy(name, window, max, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Policy) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	case p.Window < time.Millisecond:
		return fmt.Errorf("%w: %s: window must be >= 1ms", ErrInvalidPolicy, p.Name)
	case p.Max <= 0:
		return fmt.Errorf("%w: %s: max must be > 0", ErrInvalidPolicy, p.Name)
	case p.KeyPrefix == "":
		return fmt.Errorf("%w: %s: key prefix is required", ErrInvalidPolicy, p.Name)
	case p.BurstMultiplier < 1:
		return fmt.Errorf("%w: %s: burst multiplier must be >= 1", ErrInvalidPolicy, p.Name)
	case p.StatusCode < 400 || p.StatusCode > 599:
		return fmt.Errorf("%w: %s: status code must be 4xx/5xx", ErrInvalidPolicy, p.Name)
	}
	if p.TrackSuspicious {
		if p.SuspiciousThreshold < 1 {
			return fmt.Errorf("%w: %s: suspicious threshold must be >= 1", ErrInvalidPolicy, p.Name)
		}
		if p.SuspiciousTTL <= 0 {
			return fmt.Errorf("%w: %s: suspicious ttl must be > 0", ErrInvalidPolicy, p.Name)
		}
	}
	return nil
}

// Key monta a chave do contador: prefixo da política + identificador.
func (p Policy) Key(identifier string) Key {
	return Key(p.KeyPrefix + identifier)
}

// EffectiveMax é a cota aplicada: Max, ou floor(Max/BurstMultiplier) para suspeitos.
// Nunca retorna menos que 1.
func (p Policy) EffectiveMax(suspicious bool) int {
	if !suspicious || p.BurstMultiplier <= 1 {
		return p.Max
	}
	m := int(math.Floor(float64(p.Max) / p.BurstMultiplier))
	if m < 1 {
		return 1
	}
	return m
}

// SuspiciousAt informa se a contagem passou do limiar de abuso (sobre Max original).
func (p Policy) SuspiciousAt(count int64) bool {
	if !p.TrackSuspicious {
		return false
	}
	return float64(count) >= float64(p.Max)*p.SuspiciousThreshold
}
