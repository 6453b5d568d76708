package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthsafe/internal/ports/auth"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrNotConfigured = errors.New("jwt verifier not configured")
	ErrTokenEmpty    = errors.New("token is empty")
	ErrTokenInvalid  = errors.New("token is invalid")
)

// Verifier implementa auth.AuthVerifier sobre JWT HS256 emitidos por el
// Identity Context. Claims esperados: sub, role, facility_id, email.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return auth.Claims{}, ErrTokenInvalid
	}

	claims := auth.Claims{
		UserID:     strings.TrimSpace(stringClaim(mc, "sub")),
		Email:      stringClaim(mc, "email"),
		Role:       stringClaim(mc, "role"),
		FacilityID: stringClaim(mc, "facility_id"),
	}
	if claims.UserID == "" {
		return auth.Claims{}, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}
	return claims, nil
}

// Issue firma un token con los mismos claims que Verify espera. Lo usan
// tests y entornos locales; en producción los emite el Identity Context.
func (v *Verifier) Issue(c auth.Claims, ttl time.Duration) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	mc := jwt.MapClaims{
		"sub":  c.UserID,
		"role": c.Role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	if c.Email != "" {
		mc["email"] = c.Email
	}
	if c.FacilityID != "" {
		mc["facility_id"] = c.FacilityID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(v.secret)
}

func stringClaim(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return s
}
