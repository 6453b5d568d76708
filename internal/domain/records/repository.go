package records

import (
	"context"

	"healthsafe/internal/domain/notifications"
)

type Repository interface {
	// Create devuelve apperr.ErrConflict si (patient_id, number) ya existe.
	Create(ctx context.Context, r Record, notes ...notifications.Message) error
	Update(ctx context.Context, r Record) error
	GetByID(ctx context.Context, id string) (Record, error)
	CountByPatient(ctx context.Context, patientID string) (int, error)
	ListByPatient(ctx context.Context, patientID string) ([]Record, error)
	ListByCreator(ctx context.Context, creatorID string) ([]Record, error)
}
