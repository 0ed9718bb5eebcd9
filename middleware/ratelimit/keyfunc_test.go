package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	if got := fn(r); got != "client-123" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestDefaultKeyFunc_TrustProxyUsesFirstForwardedIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	r.Header.Set("X-Real-IP", "9.9.9.9")

	if got := fn(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultKeyFunc_TrustProxyFallsBackToRealIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Real-IP", "9.9.9.9")

	if got := fn(r); got != "9.9.9.9" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}
}

func TestDefaultKeyFunc_IgnoresProxyHeadersWhenUntrusted(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultKeyFunc_UnknownWhenNothingAvailable(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	if got := fn(r); got != UnknownIdentifier {
		t.Fatalf("expected %q, got %q", UnknownIdentifier, got)
	}
}

func signed(t *testing.T, secret []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestUserKeyFunc_UsesSubject(t *testing.T) {
	secret := []byte("s3cret")
	fn := UserKeyFunc(secret, nil)

	r := httptest.NewRequest(http.MethodPost, "http://example/api/payments", nil)
	r.RemoteAddr = "10.0.0.1:1"
	r.Header.Set("Authorization", "Bearer "+signed(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))

	if got := fn(r); got != "user:42" {
		t.Fatalf("expected user:42, got %q", got)
	}
}

func TestUserKeyFunc_FallsBackOnInvalidToken(t *testing.T) {
	secret := []byte("s3cret")
	fn := UserKeyFunc(secret, DefaultKeyFunc("", false))

	cases := map[string]string{
		"no header":    "",
		"wrong secret": "Bearer " + signed(t, []byte("other"), jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}),
		"expired":      "Bearer " + signed(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject":   "Bearer " + signed(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"scope": "x"}),
		"wrong alg":    "Bearer " + signed(t, secret, jwt.SigningMethodHS512, jwt.MapClaims{"sub": "1"}),
		"basic auth":   "Basic dXNlcjpwYXNz",
	}
	for name, header := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.RemoteAddr = "10.0.0.7:1"
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := fn(r); got != "10.0.0.7" {
			t.Fatalf("%s: expected fallback to remote ip, got %q", name, got)
		}
	}
}
