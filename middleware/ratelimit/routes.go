package ratelimit

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"vibewell-gateway/middleware/ratelimit/domain"
)

type Route struct {
	Prefix string
	Policy domain.Policy
}

// Routes associa prefixos de caminho a políticas. Vence o prefixo mais longo;
// sem correspondência, usa Default (ou deixa passar se não houver).
type Routes struct {
	routes  []Route
	Default *domain.Policy
}

func NewRoutes(def *domain.Policy, routes ...Route) *Routes {
	rs := &Routes{Default: def, routes: append([]Route(nil), routes...)}
	sort.SliceStable(rs.routes, func(i, j int) bool {
		return len(rs.routes[i].Prefix) > len(rs.routes[j].Prefix)
	})
	return rs
}

// ParseRoutes lê "prefixo=politica,prefixo=politica" contra o conjunto de políticas.
// defaultName vazio desliga o fallback.
func ParseRoutes(table string, defaultName string, set domain.PolicySet) (*Routes, error) {
	var def *domain.Policy
	if name := strings.TrimSpace(defaultName); name != "" {
		p, ok := set.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPolicy, name)
		}
		def = &p
	}

	var routes []Route
	for _, item := range strings.Split(table, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		prefix, name, ok := strings.Cut(item, "=")
		prefix, name = strings.TrimSpace(prefix), strings.TrimSpace(name)
		if !ok || prefix == "" || name == "" {
			return nil, fmt.Errorf("route must follow PREFIX=POLICY: %q", item)
		}
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix must start with /: %q", prefix)
		}
		p, ok := set.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (route %s)", domain.ErrUnknownPolicy, name, prefix)
		}
		routes = append(routes, Route{Prefix: prefix, Policy: p})
	}
	return NewRoutes(def, routes...), nil
}

// Match devolve a política do caminho. O prefixo casa por segmento:
// "/api/auth" casa "/api/auth" e "/api/auth/login", mas não "/api/authz".
func (rs *Routes) Match(path string) (domain.Policy, bool) {
	for _, rt := range rs.routes {
		if matchPrefix(path, rt.Prefix) {
			return rt.Policy, true
		}
	}
	if rs.Default != nil {
		return *rs.Default, true
	}
	return domain.Policy{}, false
}

func (rs *Routes) Routes() []Route { return append([]Route(nil), rs.routes...) }

func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

// Middleware escolhe a política por requisição; rotas sem política passam direto.
func (rs *Routes) Middleware(opts Options) (func(next http.Handler) http.Handler, error) {
	g, err := newGuard(opts)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := rs.Match(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, p)
		})
	}, nil
}
