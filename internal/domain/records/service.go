package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/notifications"

	"github.com/google/uuid"
)

const numberAttempts = 5

type Service struct {
	repo   Repository
	actors *actors.Service
	audit  *audit.Recorder
	now    func() time.Time
}

func NewService(repo Repository, actorsSvc *actors.Service, rec *audit.Recorder) *Service {
	return &Service{
		repo:   repo,
		actors: actorsSvc,
		audit:  rec,
		now:    time.Now,
	}
}

type CreateInput struct {
	PatientCode string
	Title       string
	Content     string
}

// Create abre un dossier para el paciente identificado por su código.
// La numeración es count+1; si otro alta ganó el número se reintenta.
func (s *Service) Create(ctx context.Context, p actors.Principal, in CreateInput) (Record, error) {
	if p.Role != actors.RoleClinician {
		return Record{}, apperr.ErrUnauthorized
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Record{}, fmt.Errorf("%w: title required", apperr.ErrInvalidInput)
	}

	if _, err := s.actors.Get(ctx, p.ID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Record{}, fmt.Errorf("%w: clinician profile required", apperr.ErrUnauthorized)
		}
		return Record{}, err
	}
	patient, err := s.actors.FindByPatientCode(ctx, in.PatientCode)
	if err != nil {
		return Record{}, err
	}

	creator := p.ID
	for i := 0; i < numberAttempts; i++ {
		n, err := s.repo.CountByPatient(ctx, patient.ID)
		if err != nil {
			return Record{}, err
		}

		now := s.now().UTC()
		rec := Record{
			ID:        uuid.NewString(),
			Number:    FormatNumber(n + 1),
			PatientID: patient.ID,
			CreatorID: &creator,
			Title:     title,
			Content:   strings.TrimSpace(in.Content),
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		note := notifications.NewMessage(notifications.EventRecordCreated, patient.ID, map[string]string{
			"record_number": rec.Number,
			"record_title":  rec.Title,
		}, now)

		err = s.repo.Create(ctx, rec, note)
		if errors.Is(err, apperr.ErrConflict) {
			continue
		}
		if err != nil {
			return Record{}, err
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:       p.ID,
			ActorRole:     string(p.Role),
			Action:        audit.ActionRecordCreated,
			TargetActorID: patient.ID,
			RecordID:      rec.ID,
			Metadata:      map[string]string{"number": rec.Number},
		})
		return rec, nil
	}
	return Record{}, fmt.Errorf("%w: could not allocate record number", apperr.ErrConflict)
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, apperr.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]Record, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string) ([]Record, error) {
	return s.repo.ListByCreator(ctx, creatorID)
}

// ListMine: el paciente ve los suyos, el clínico los que creó.
func (s *Service) ListMine(ctx context.Context, p actors.Principal) ([]Record, error) {
	switch p.Role {
	case actors.RolePatient:
		return s.repo.ListByPatient(ctx, p.ID)
	case actors.RoleClinician:
		return s.repo.ListByCreator(ctx, p.ID)
	default:
		return nil, apperr.ErrUnauthorized
	}
}

type UpdateInput struct {
	// nil = no tocar
	Title   *string
	Content *string
}

// Update: solo el clínico creador y con el record activo.
func (s *Service) Update(ctx context.Context, p actors.Principal, id string, in UpdateInput) (Record, error) {
	if p.Role != actors.RoleClinician {
		return Record{}, apperr.ErrUnauthorized
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !rec.CreatedBy(p.ID) {
		return Record{}, apperr.ErrUnauthorized
	}
	if !rec.Active {
		return Record{}, fmt.Errorf("%w: record is inactive", apperr.ErrInvalidState)
	}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return Record{}, fmt.Errorf("%w: title cannot be empty", apperr.ErrInvalidInput)
		}
		rec.Title = t
	}
	if in.Content != nil {
		rec.Content = strings.TrimSpace(*in.Content)
	}
	rec.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, rec); err != nil {
		return Record{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:   p.ID,
		ActorRole: string(p.Role),
		Action:    audit.ActionRecordUpdated,
		RecordID:  rec.ID,
	})
	return rec, nil
}

// Deactivate es el soft delete; solo admins. Repetirlo no genera otro evento.
func (s *Service) Deactivate(ctx context.Context, p actors.Principal, id string) (Record, error) {
	if !p.Role.IsAdmin() {
		return Record{}, apperr.ErrUnauthorized
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !rec.Active {
		return rec, nil
	}

	rec.Active = false
	rec.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, rec); err != nil {
		return Record{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionRecordDeactivated,
		TargetActorID: rec.PatientID,
		RecordID:      rec.ID,
	})
	return rec, nil
}
