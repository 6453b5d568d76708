package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
)

type ActorsRepo struct {
	db *DB
}

func NewActorsRepo(db *DB) *ActorsRepo {
	return &ActorsRepo{db: db}
}

func cloneActor(a actors.Actor) actors.Actor {
	a.FacilityID = strPtrCopy(a.FacilityID)
	return a
}

func (r *ActorsRepo) Create(ctx context.Context, a actors.Actor) error {
	if a.ID == "" {
		return errors.New("actor id required")
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.actors[a.ID]; exists {
		return apperr.ErrConflict
	}
	if a.PatientCode != "" {
		if _, taken := r.db.patientCode[a.PatientCode]; taken {
			return apperr.ErrConflict
		}
		r.db.patientCode[a.PatientCode] = a.ID
	}
	r.db.actors[a.ID] = cloneActor(a)
	return nil
}

func (r *ActorsRepo) Update(ctx context.Context, a actors.Actor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.actors[a.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if a.PatientCode != current.PatientCode {
		if a.PatientCode != "" {
			if owner, taken := r.db.patientCode[a.PatientCode]; taken && owner != a.ID {
				return apperr.ErrConflict
			}
			r.db.patientCode[a.PatientCode] = a.ID
		}
		// El código anterior deja de resolver en el mismo paso.
		delete(r.db.patientCode, current.PatientCode)
	}
	r.db.actors[a.ID] = cloneActor(a)
	return nil
}

func (r *ActorsRepo) GetByID(ctx context.Context, id string) (actors.Actor, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	a, ok := r.db.actors[id]
	if !ok {
		return actors.Actor{}, apperr.ErrNotFound
	}
	return cloneActor(a), nil
}

func (r *ActorsRepo) GetByPatientCode(ctx context.Context, code string) (actors.Actor, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id, ok := r.db.patientCode[code]
	if !ok || code == "" {
		return actors.Actor{}, apperr.ErrNotFound
	}
	return cloneActor(r.db.actors[id]), nil
}

// FindClinician busca por matrícula exacta y nombre/apellido sin distinguir
// mayúsculas. Incluye clínicos promovidos o revocados (conservan matrícula).
func (r *ActorsRepo) FindClinician(ctx context.Context, ident actors.ClinicianIdentity) (actors.Actor, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var (
		winner actors.Actor
		found  bool
	)
	for _, a := range r.db.actors {
		if a.LicenseNumber == "" || a.LicenseNumber != ident.LicenseNumber {
			continue
		}
		if !strings.EqualFold(a.FirstName, ident.FirstName) || !strings.EqualFold(a.LastName, ident.LastName) {
			continue
		}
		if !found || a.ID < winner.ID {
			winner = a
			found = true
		}
	}
	if !found {
		return actors.Actor{}, apperr.ErrNotFound
	}
	return cloneActor(winner), nil
}

func (r *ActorsRepo) Revoke(ctx context.Context, id string, at time.Time, notes ...notifications.Message) (actors.Actor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.actors[id]
	if !ok {
		return actors.Actor{}, apperr.ErrNotFound
	}
	a.Role = actors.RoleRevoked
	a.Active = false
	a.UpdatedAt = at
	r.db.actors[id] = a

	for rid, rec := range r.db.records {
		if rec.CreatedBy(id) {
			rec.CreatorID = nil
			rec.UpdatedAt = at
			r.db.records[rid] = rec
		}
	}

	r.db.enqueueLocked(notes)
	return cloneActor(a), nil
}
