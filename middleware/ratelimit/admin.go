package ratelimit

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vibewell-gateway/internal/log"
	"vibewell-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
)

// Admin é a superfície de inspeção/desbloqueio da camada application.
type Admin interface {
	Status(ctx context.Context, identifier string, p domain.Policy) (domain.Result, domain.State, error)
	Reset(ctx context.Context, identifier string, p domain.Policy) error
}

type statusBody struct {
	Policy     string    `json:"policy"`
	Identifier string    `json:"identifier"`
	State      string    `json:"state"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"resetTime"`
	RetryAfter int       `json:"retryAfter"`
	Suspicious bool      `json:"suspicious"`
}

// AdminHandler expõe:
//
//	GET    /{policy}/{identifier}  estado atual sem contar a requisição
//	DELETE /{policy}/{identifier}  zera contador e flag de suspeita
//
// Exige "Authorization: Bearer <token>". Token vazio recusa tudo.
func AdminHandler(admin Admin, policies domain.PolicySet, token string, logger log.Logger) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got, ok := bearerToken(req)
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	lookup := func(w http.ResponseWriter, req *http.Request) (domain.Policy, string, bool) {
		p, ok := policies.Lookup(chi.URLParam(req, "policy"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": domain.ErrUnknownPolicy.Error()})
			return domain.Policy{}, "", false
		}
		return p, chi.URLParam(req, "identifier"), true
	}

	r.Get("/{policy}/{identifier}", func(w http.ResponseWriter, req *http.Request) {
		p, id, ok := lookup(w, req)
		if !ok {
			return
		}
		res, st, err := admin.Status(req.Context(), id, p)
		if err != nil {
			writeAdminError(w, req, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statusBody{
			Policy:     p.Name,
			Identifier: id,
			State:      string(st),
			Limit:      res.Limit,
			Remaining:  res.Remaining,
			ResetTime:  res.ResetTime.UTC(),
			RetryAfter: res.RetryAfterSeconds(),
			Suspicious: res.Suspicious,
		})
	})

	r.Delete("/{policy}/{identifier}", func(w http.ResponseWriter, req *http.Request) {
		p, id, ok := lookup(w, req)
		if !ok {
			return
		}
		if err := admin.Reset(req.Context(), id, p); err != nil {
			writeAdminError(w, req, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func writeAdminError(w http.ResponseWriter, r *http.Request, logger log.Logger, err error) {
	if errors.Is(err, domain.ErrEmptyIdentifier) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	logger.Error(r.Context(), err, "rate limit admin operation failed", "path", r.URL.Path)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rate limit store unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
