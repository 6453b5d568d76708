// Package respond concentra la escritura de respuestas JSON y el mapeo de
// errores de dominio a códigos HTTP, compartido por todos los handlers.
package respond

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/platform/logger"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var validate = validator.New()

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Unauthenticated: no hay identidad en el request.
func Unauthenticated(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, ErrorBody{Error: "unauthenticated", Code: "UNAUTHENTICATED"})
}

// Status mapea un error de dominio a su código HTTP.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidDecision):
		return http.StatusBadRequest, "INVALID_DECISION"
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, apperr.ErrAlreadyPending):
		return http.StatusConflict, "ALREADY_PENDING"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, apperr.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, apperr.ErrTransient):
		return http.StatusServiceUnavailable, "TRANSIENT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// Error escribe err. Los resultados de negocio se loguean en debug; el resto en error
// y sin exponer el detalle al cliente.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Status(err)
	log := logger.FromContext(r.Context())

	msg := err.Error()
	if apperr.IsExpected(err) {
		log.Debug("request rejected", map[string]any{"code": code, "err": err})
	} else {
		log.Error("request failed", map[string]any{"code": code, "err": err})
		msg = strings.ToLower(http.StatusText(status))
	}
	JSON(w, status, ErrorBody{Error: msg, Code: code})
}

// Decode lee el body JSON en v y aplica los tags `validate`.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json", apperr.ErrInvalidInput)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %s", apperr.ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
