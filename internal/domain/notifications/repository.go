package notifications

import (
	"context"
	"time"
)

// Repository es la vista de lectura/cierre del outbox que usa el dispatcher.
// Las escrituras las hacen los repos de cada módulo dentro de su transacción.
type Repository interface {
	ListPending(ctx context.Context, limit, maxAttempts int) ([]Message, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Publisher entrega un mensaje al colaborador externo (cola, webhook, log).
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}
