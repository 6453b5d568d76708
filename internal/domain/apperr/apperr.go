// Package apperr define los tipos de error compartidos por los módulos de dominio.
// Los cinco primeros son resultados de negocio esperados; ErrTransient es infraestructura.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")

	ErrTransient = errors.New("transient store error")
)

// Variantes con nombre propio; errors.Is sigue matcheando el tipo base.
var (
	ErrAlreadyPending  = fmt.Errorf("%w: request already pending", ErrConflict)
	ErrInvalidDecision = fmt.Errorf("%w: invalid decision", ErrInvalidState)
)

// IsExpected indica si err es un resultado de negocio (no se loguea como error de sistema).
func IsExpected(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState)
}
