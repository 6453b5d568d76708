package audit

import "context"

type Repository interface {
	Append(ctx context.Context, e Event) error
	// Query devuelve del más reciente al más antiguo, ya limitado.
	Query(ctx context.Context, f Filter) ([]Event, error)
}
