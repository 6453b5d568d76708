package grants

import (
	"context"

	"healthsafe/internal/domain/notifications"
)

type Repository interface {
	// Create devuelve apperr.ErrConflict si ya hay un grant para (record, clínico).
	Create(ctx context.Context, g Grant, notes ...notifications.Message) error
	List(ctx context.Context, f Filter) ([]Grant, error)
	Exists(ctx context.Context, recordID, clinicianID string) (bool, error)
	// DeleteByAuthorizer borra solo los grants del clínico otorgados por authorizedBy,
	// en una sola transacción con el outbox. Las notes se encolan solo si se borró algo.
	DeleteByAuthorizer(ctx context.Context, clinicianID, authorizedBy string, notes ...notifications.Message) (int, error)
}
