package grants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
	"healthsafe/internal/platform/retry"

	"github.com/google/uuid"
)

type Service struct {
	repo    Repository
	records *records.Service
	actors  *actors.Service
	audit   *audit.Recorder
	retry   retry.Policy
	now     func() time.Time
}

func NewService(repo Repository, recordsSvc *records.Service, actorsSvc *actors.Service, rec *audit.Recorder) *Service {
	return &Service{
		repo:    repo,
		records: recordsSvc,
		actors:  actorsSvc,
		audit:   rec,
		retry:   retry.Default(),
		now:     time.Now,
	}
}

// CreateGrant es la operación cruda del store: sin chequeos de rol.
// Un duplicado vuelve como apperr.ErrConflict para que el llamador distinga
// "recién otorgado" de "ya estaba".
func (s *Service) CreateGrant(ctx context.Context, recordID, clinicianID, authorizer string, notes ...notifications.Message) (Grant, error) {
	recordID = strings.TrimSpace(recordID)
	clinicianID = strings.TrimSpace(clinicianID)
	authorizer = strings.TrimSpace(authorizer)
	if recordID == "" || clinicianID == "" || authorizer == "" {
		return Grant{}, apperr.ErrInvalidInput
	}

	g := Grant{
		ID:           uuid.NewString(),
		RecordID:     recordID,
		ClinicianID:  clinicianID,
		AuthorizedBy: authorizer,
		CreatedAt:    s.now().UTC(),
	}
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, g, notes...)
	})
	if err != nil {
		return Grant{}, err
	}
	return g, nil
}

func (s *Service) ListGrants(ctx context.Context, f Filter) ([]Grant, error) {
	return retry.Value(ctx, s.retry, func(ctx context.Context) ([]Grant, error) {
		return s.repo.List(ctx, f)
	})
}

// HasGrant es la lectura que usa el evaluador (reintentada).
func (s *Service) HasGrant(ctx context.Context, recordID, clinicianID string) (bool, error) {
	if recordID == "" || clinicianID == "" {
		return false, nil
	}
	return retry.Value(ctx, s.retry, func(ctx context.Context) (bool, error) {
		return s.repo.Exists(ctx, recordID, clinicianID)
	})
}

// RevokeGrants borra los grants de clinicianID otorgados por authorizer y nada más.
func (s *Service) RevokeGrants(ctx context.Context, clinicianID, authorizer string, notes ...notifications.Message) (int, error) {
	clinicianID = strings.TrimSpace(clinicianID)
	authorizer = strings.TrimSpace(authorizer)
	if clinicianID == "" || authorizer == "" {
		return 0, apperr.ErrInvalidInput
	}
	return retry.Value(ctx, s.retry, func(ctx context.Context) (int, error) {
		return s.repo.DeleteByAuthorizer(ctx, clinicianID, authorizer, notes...)
	})
}

// Target identifica al clínico por id o por el triple nombre/apellido/matrícula.
type Target struct {
	ClinicianID string
	Identity    actors.ClinicianIdentity
}

func (s *Service) resolveClinician(ctx context.Context, t Target) (actors.Actor, error) {
	var (
		c   actors.Actor
		err error
	)
	if id := strings.TrimSpace(t.ClinicianID); id != "" {
		c, err = s.actors.Get(ctx, id)
	} else {
		c, err = s.actors.FindClinicianByIdentity(ctx, t.Identity)
	}
	if err != nil {
		return actors.Actor{}, err
	}
	if c.Role != actors.RoleClinician || !c.Active {
		return actors.Actor{}, fmt.Errorf("%w: target is not an active clinician", apperr.ErrNotFound)
	}
	return c, nil
}

// canDelegate: dueño, clínico creador o admin pueden otorgar.
func canDelegate(p actors.Principal, rec records.Record) bool {
	switch p.Role {
	case actors.RolePatient:
		return rec.PatientID == p.ID
	case actors.RoleClinician:
		return rec.CreatedBy(p.ID)
	case actors.RoleFacilityAdmin, actors.RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// GrantExplicit otorga acceso a un record puntual.
func (s *Service) GrantExplicit(ctx context.Context, p actors.Principal, recordID string, t Target) (Grant, error) {
	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		return Grant{}, err
	}
	if !canDelegate(p, rec) {
		return Grant{}, apperr.ErrUnauthorized
	}
	if !rec.Active {
		return Grant{}, fmt.Errorf("%w: record is inactive", apperr.ErrInvalidState)
	}

	clinician, err := s.resolveClinician(ctx, t)
	if err != nil {
		return Grant{}, err
	}
	if rec.CreatedBy(clinician.ID) {
		return Grant{}, fmt.Errorf("%w: clinician already created this record", apperr.ErrConflict)
	}

	note := notifications.NewMessage(notifications.EventAccessGranted, clinician.ID, map[string]string{
		"record_number": rec.Number,
		"record_title":  rec.Title,
	}, s.now().UTC())

	g, err := s.CreateGrant(ctx, rec.ID, clinician.ID, p.ID, note)
	if err != nil {
		return Grant{}, err
	}

	meta := map[string]string{"grant_id": g.ID}
	if p.Role.IsAdmin() {
		meta["override"] = "true"
	}
	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionGrantCreated,
		TargetActorID: clinician.ID,
		RecordID:      rec.ID,
		Metadata:      meta,
	})
	return g, nil
}

// ListMine: el paciente ve lo que otorgó, el clínico lo que tiene.
func (s *Service) ListMine(ctx context.Context, p actors.Principal) ([]Grant, error) {
	switch p.Role {
	case actors.RolePatient:
		return s.ListGrants(ctx, Filter{AuthorizedBy: p.ID})
	case actors.RoleClinician:
		return s.ListGrants(ctx, Filter{ClinicianID: p.ID})
	default:
		return nil, apperr.ErrUnauthorized
	}
}
