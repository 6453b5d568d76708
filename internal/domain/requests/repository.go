package requests

import (
	"context"

	"healthsafe/internal/domain/notifications"
)

type Repository interface {
	// Create devuelve apperr.ErrAlreadyPending si ya hay un PENDING para el par
	// (constraint del store, no chequeo previo).
	Create(ctx context.Context, r Request, notes ...notifications.Message) error
	GetByID(ctx context.Context, id string) (Request, error)

	// Resolve aplica el CAS en una transacción: si la decisión es ACCEPTED crea
	// (ON CONFLICT DO NOTHING) un grant por cada record del paciente, autorizado
	// por él, y encola Notes. Devuelve cuántos grants se insertaron.
	// apperr.ErrInvalidState si el request ya no está PENDING.
	Resolve(ctx context.Context, res Resolution) (Request, int, error)

	// status "" = todos. Del más reciente al más antiguo.
	ListByPatient(ctx context.Context, patientID string, status State) ([]Request, error)
	ListByClinician(ctx context.Context, clinicianID string, status State) ([]Request, error)
}
