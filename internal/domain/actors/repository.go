package actors

import (
	"context"
	"time"

	"healthsafe/internal/domain/notifications"
)

type Repository interface {
	// Create devuelve apperr.ErrConflict si el id o el código de paciente ya existen.
	Create(ctx context.Context, a Actor) error
	Update(ctx context.Context, a Actor) error
	GetByID(ctx context.Context, id string) (Actor, error)
	GetByPatientCode(ctx context.Context, code string) (Actor, error)
	FindClinician(ctx context.Context, ident ClinicianIdentity) (Actor, error)

	// Revoke pasa el actor a REVOKED/inactivo y limpia creator_id de sus records
	// en la misma transacción que el outbox.
	Revoke(ctx context.Context, id string, at time.Time, notes ...notifications.Message) (Actor, error)
}
