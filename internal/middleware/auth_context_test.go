package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/ports/auth"
)

type stubResolver struct {
	role string
	err  error
}

func (s stubResolver) Resolve(ctx context.Context, c auth.Claims) (auth.Claims, error) {
	if s.err != nil {
		return auth.Claims{}, s.err
	}
	c.Role = s.role
	return c, nil
}

// chain arma AuthContext (modo dev) + ResolveClaims y devuelve el rol que ve el handler.
func chain(resolver ClaimsResolver, seen *string, called *bool) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if c, ok := GetClaims(r.Context()); ok {
			*seen = c.Role
		}
		w.WriteHeader(http.StatusOK)
	})
	return AuthContext(nil)(ResolveClaims(resolver)(next))
}

func TestResolveClaims_StoredRoleWins(t *testing.T) {
	var (
		seen   string
		called bool
	)
	h := chain(stubResolver{role: "REVOKED"}, &seen, &called)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Debug-User-ID", "c1")
	req.Header.Set("X-Debug-Role", "CLINICIAN")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !called || seen != "REVOKED" {
		t.Fatalf("expected stored role, got status=%d called=%v role=%q", rr.Code, called, seen)
	}
}

func TestResolveClaims_FailsClosed(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"transient", apperr.ErrTransient, http.StatusServiceUnavailable},
		{"unexpected", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var (
				seen   string
				called bool
			)
			h := chain(stubResolver{err: tc.err}, &seen, &called)

			req := httptest.NewRequest(http.MethodGet, "/records/r1", nil)
			req.Header.Set("X-Debug-User-ID", "c1")
			req.Header.Set("X-Debug-Role", "CLINICIAN")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if called {
				t.Fatalf("handler must not run with unresolved claims (role=%q)", seen)
			}
		})
	}
}

func TestResolveClaims_AnonymousPassesThrough(t *testing.T) {
	var (
		seen   string
		called bool
	)
	h := chain(stubResolver{err: apperr.ErrTransient}, &seen, &called)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !called || seen != "" {
		t.Fatalf("anonymous request must reach the handler, got status=%d called=%v", rr.Code, called)
	}
}
