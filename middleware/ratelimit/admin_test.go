package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vibewell-gateway/middleware/ratelimit/application"
	"vibewell-gateway/middleware/ratelimit/domain"
	"vibewell-gateway/middleware/ratelimit/infra"
)

func adminRequest(method, path, token string) *http.Request {
	r := httptest.NewRequest(method, "http://example"+path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAdminHandler_StatusAndReset(t *testing.T) {
	svc := application.NewService(infra.NewMemoryStore())
	set := domain.NewPolicySet(domain.MustPolicy("auth", time.Minute, 2))
	p, _ := set.Lookup("auth")
	h := AdminHandler(svc, set, "t0ken", nil)

	ctx := context.Background()
	_, _ = svc.Check(ctx, "1.2.3.4", p)
	_, _ = svc.Check(ctx, "1.2.3.4", p)
	_, _ = svc.Check(ctx, "1.2.3.4", p)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, adminRequest(http.MethodGet, "/auth/1.2.3.4", "t0ken"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body statusBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != string(domain.StateAtLimit) || body.Remaining != 0 || body.RetryAfter <= 0 {
		t.Fatalf("unexpected status %+v", body)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, adminRequest(http.MethodDelete, "/auth/1.2.3.4", "t0ken"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if res, _ := svc.Check(ctx, "1.2.3.4", p); !res.Success {
		t.Fatalf("expected identifier to be unblocked after reset")
	}
}

func TestAdminHandler_RequiresToken(t *testing.T) {
	svc := application.NewService(infra.NewMemoryStore())
	set := domain.DefaultPolicies()

	for _, tc := range []struct {
		configured, sent string
	}{
		{"t0ken", ""},
		{"t0ken", "wrong"},
		{"", ""},
		{"", "anything"},
	} {
		h := AdminHandler(svc, set, tc.configured, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, adminRequest(http.MethodGet, "/auth/1.2.3.4", tc.sent))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("configured=%q sent=%q: expected 401, got %d", tc.configured, tc.sent, w.Code)
		}
	}
}

func TestAdminHandler_UnknownPolicyAndStoreDown(t *testing.T) {
	set := domain.DefaultPolicies()

	h := AdminHandler(application.NewService(infra.NewMemoryStore()), set, "t", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, adminRequest(http.MethodGet, "/nope/1.2.3.4", "t"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown policy, got %d", w.Code)
	}

	h = AdminHandler(application.NewService(downStore{}), set, "t", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, adminRequest(http.MethodDelete, "/auth/1.2.3.4", "t"))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when store is down, got %d", w.Code)
	}
}
