package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"healthsafe/internal/ports/auth"

	"github.com/golang-jwt/jwt/v4"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Issue(auth.Claims{UserID: "c1", Role: "CLINICIAN", FacilityID: "f1", Email: "c1@example.org"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	c, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if c.UserID != "c1" || c.Role != "CLINICIAN" || c.FacilityID != "f1" || c.Email != "c1@example.org" {
		t.Fatalf("unexpected claims: %#v", c)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	ctx := context.Background()

	if _, err := v.Verify(ctx, "  "); !errors.Is(err, ErrTokenEmpty) {
		t.Fatalf("expected ErrTokenEmpty, got %v", err)
	}

	other, _ := NewVerifier("other").Issue(auth.Claims{UserID: "p1", Role: "PATIENT"}, time.Minute)
	if _, err := v.Verify(ctx, other); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	expired, _ := v.Issue(auth.Claims{UserID: "p1", Role: "PATIENT"}, -time.Minute)
	if _, err := v.Verify(ctx, expired); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "PATIENT"}).SignedString([]byte("s3cret"))
	if _, err := v.Verify(ctx, noSub); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected missing sub rejection, got %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "p1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := v.Verify(ctx, none); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none rejection, got %v", err)
	}

	if _, err := NewVerifier("").Verify(ctx, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
