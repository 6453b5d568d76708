package retry

import (
	"context"
	"errors"
	"time"

	"healthsafe/internal/domain/apperr"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 20 * time.Millisecond
)

// Policy controla los reintentos ante apperr.ErrTransient.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

// Do ejecuta fn hasta Attempts veces mientras devuelva un error transitorio.
// Cualquier otro error (o nil) corta de inmediato.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, apperr.ErrTransient) {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := p.Backoff * time.Duration(1<<i)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
	return err
}

// Value es la variante genérica de Do para lecturas.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
