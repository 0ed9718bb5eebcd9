package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UnknownIdentifier é o identificador usado quando nada pôde ser extraído.
// Todas essas requisições dividem um único bucket.
const UnknownIdentifier = "unknown"

type KeyFunc func(r *http.Request) string

// DefaultKeyFunc extrai o identificador, nesta ordem:
// header configurado, X-Forwarded-For (primeiro IP) e X-Real-IP quando trustProxy,
// host do RemoteAddr e, por fim, "unknown".
func DefaultKeyFunc(keyHeader string, trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustProxy {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		addr := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return UnknownIdentifier
	}
}

// UserKeyFunc usa o subject de um bearer JWT (HS256) válido como identificador
// ("user:<sub>"). Sem token válido, delega ao fallback.
func UserKeyFunc(secret []byte, fallback KeyFunc) KeyFunc {
	if fallback == nil {
		fallback = DefaultKeyFunc("", false)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(r *http.Request) string {
		raw, ok := bearerToken(r)
		if !ok || len(secret) == 0 {
			return fallback(r)
		}

		token, err := parser.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil })
		if err != nil || !token.Valid {
			return fallback(r)
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(sub) == "" {
			return fallback(r)
		}
		return "user:" + strings.TrimSpace(sub)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
