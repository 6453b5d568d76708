package middleware

import (
	"context"
	"net/http"
	"strings"

	"healthsafe/internal/platform/logger"
	"healthsafe/internal/platform/respond"
	"healthsafe/internal/ports/auth"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// AuthContext:
// - Si verifier != nil y viene Bearer token => intenta Verify() y setea claims.
// - Si verifier == nil => modo dev: X-Debug-User-ID (+ X-Debug-Role, X-Debug-Facility-ID).
// - Si no hay claims, el request sigue igual; los handlers responden 401.
func AuthContext(verifier auth.AuthVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				if uid := strings.TrimSpace(r.Header.Get("X-Debug-User-ID")); uid != "" {
					claims := auth.Claims{
						UserID:     uid,
						Role:       strings.TrimSpace(r.Header.Get("X-Debug-Role")),
						FacilityID: strings.TrimSpace(r.Header.Get("X-Debug-Facility-ID")),
					}
					next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
					return
				}

				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).Debug("token rejected", map[string]any{"err": err})
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// ClaimsResolver completa los claims con el perfil guardado (rol vigente, revocación).
type ClaimsResolver interface {
	Resolve(ctx context.Context, c auth.Claims) (auth.Claims, error)
}

// ResolveClaims va después de AuthContext. Si el resolver falla el request
// termina ahí (503 si es transitorio); nunca sigue con los claims del token.
func ResolveClaims(resolver ClaimsResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}

			resolved, err := resolver.Resolve(r.Context(), claims)
			if err != nil {
				logger.FromContext(r.Context()).Warn("claims resolve failed", map[string]any{"err": err, "user_id": claims.UserID})
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), resolved)))
		})
	}
}

func WithClaims(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	v := ctx.Value(claimsKey)
	if v == nil {
		return auth.Claims{}, false
	}
	c, ok := v.(auth.Claims)
	if !ok || strings.TrimSpace(c.UserID) == "" {
		return auth.Claims{}, false
	}
	return c, true
}

func bearerToken(authHeader string) string {
	if strings.TrimSpace(authHeader) == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
