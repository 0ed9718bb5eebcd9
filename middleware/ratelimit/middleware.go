package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"vibewell-gateway/internal/log"
	"vibewell-gateway/middleware/ratelimit/domain"
)

var errNoLimiter = errors.New("ratelimit: limiter is required")

// Checker é o que o middleware precisa da camada application.
type Checker interface {
	Check(ctx context.Context, identifier string, p domain.Policy) (domain.Result, error)
}

type Options struct {
	Limiter Checker
	// Policy é usada por Middleware; Routes.Middleware ignora este campo.
	Policy              domain.Policy
	KeyFn               KeyFunc
	KeyHeader           string
	TrustProxy          bool
	SkipUnknown         bool
	AddRateLimitHeaders bool
	Logger              log.Logger
}

// Middleware aplica uma única política a todas as requisições.
// Falha na construção se a política ou o limiter forem inválidos.
func Middleware(opts Options) (func(next http.Handler) http.Handler, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	g, err := newGuard(opts)
	if err != nil {
		return nil, err
	}
	p := opts.Policy

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next, p)
		})
	}, nil
}

type guard struct {
	opts Options
}

func newGuard(opts Options) (*guard, error) {
	if opts.Limiter == nil {
		return nil, errNoLimiter
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustProxy)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &guard{opts: opts}, nil
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, p domain.Policy) {
	id := strings.TrimSpace(g.opts.KeyFn(r))
	if id == "" {
		id = UnknownIdentifier
	}
	// handlers seguintes logam com policy/identifier via log.FromContext
	r = r.WithContext(log.WithContext(r.Context(), g.opts.Logger.With("policy", p.Name, "identifier", id)))
	if id == UnknownIdentifier && g.opts.SkipUnknown {
		next.ServeHTTP(w, r)
		return
	}

	res, err := g.opts.Limiter.Check(r.Context(), id, p)
	if err != nil {
		// entrada inválida não deve derrubar a requisição
		g.opts.Logger.Error(r.Context(), err, "rate limit check rejected input", "policy", p.Name)
		next.ServeHTTP(w, r)
		return
	}

	if !res.Success {
		setRateLimitHeaders(w, res)
		w.Header().Set("Retry-After", formatInt(res.RetryAfterSeconds()))
		writeDenied(w, p, res)
		return
	}

	if g.opts.AddRateLimitHeaders {
		setRateLimitHeaders(w, res)
	}
	next.ServeHTTP(w, r)
}

func setRateLimitHeaders(w http.ResponseWriter, res domain.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(res.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(res.Remaining))
	h.Set("X-RateLimit-Reset", formatUnix(res.ResetTime))
}

type deniedBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

func writeDenied(w http.ResponseWriter, p domain.Policy, res domain.Result) {
	status := p.StatusCode
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	msg := p.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(deniedBody{Error: msg, RetryAfter: res.RetryAfterSeconds()})
}
