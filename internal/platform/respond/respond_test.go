package respond

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"healthsafe/internal/domain/apperr"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", apperr.ErrInvalidInput), http.StatusBadRequest},
		{apperr.ErrInvalidDecision, http.StatusBadRequest},
		{apperr.ErrUnauthorized, http.StatusForbidden},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrAlreadyPending, http.StatusConflict},
		{apperr.ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: terminal", apperr.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: conn", apperr.ErrTransient), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got, _ := Status(c.err); got != c.want {
			t.Fatalf("Status(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestError_HidesUnexpectedDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, fmt.Errorf("pq: password for user x"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

type sampleBody struct {
	Name string `json:"name" validate:"required"`
}

func TestDecode_ValidatesAndRejectsUnknownFields(t *testing.T) {
	ok := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	var b sampleBody
	if err := Decode(ok, &b); err != nil || b.Name != "x" {
		t.Fatalf("expected decode ok, got %v %#v", err, b)
	}

	for _, body := range []string{`{}`, `{"name":"x","extra":1}`, `not json`} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var v sampleBody
		if code, _ := Status(Decode(r, &v)); code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, code)
		}
	}
}
