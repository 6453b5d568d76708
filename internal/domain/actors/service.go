package actors

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/retry"
	"healthsafe/internal/ports/auth"
)

const (
	patientCodeLength   = 8
	patientCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeAttempts        = 3
)

type Service struct {
	repo    Repository
	audit   *audit.Recorder
	retry   retry.Policy
	now     func() time.Time
	newCode func() (string, error)
}

func NewService(repo Repository, rec *audit.Recorder) *Service {
	return &Service{
		repo:    repo,
		audit:   rec,
		retry:   retry.Default(),
		now:     time.Now,
		newCode: generatePatientCode,
	}
}

func generatePatientCode() (string, error) {
	max := big.NewInt(int64(len(patientCodeAlphabet)))
	var b strings.Builder
	for i := 0; i < patientCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(patientCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode es la forma canónica con la que se guardan y comparan códigos.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type RegisterInput struct {
	FirstName     string
	LastName      string
	LicenseNumber string
	Email         string
	FacilityID    string
}

// RegisterProfile crea el perfil del actor autenticado. Las credenciales
// viven en el Identity Context; acá solo se guardan los datos de dominio.
func (s *Service) RegisterProfile(ctx context.Context, p Principal, in RegisterInput) (Actor, error) {
	if p.ID == "" {
		return Actor{}, apperr.ErrUnauthorized
	}
	if p.Role != RolePatient && p.Role != RoleClinician {
		return Actor{}, fmt.Errorf("%w: only patients and clinicians self-register", apperr.ErrUnauthorized)
	}

	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return Actor{}, fmt.Errorf("%w: first_name and last_name required", apperr.ErrInvalidInput)
	}

	now := s.now().UTC()
	a := Actor{
		ID:        p.ID,
		Role:      p.Role,
		Active:    true,
		FirstName: first,
		LastName:  last,
		Email:     strings.TrimSpace(in.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if f := strings.TrimSpace(in.FacilityID); f != "" {
		a.FacilityID = &f
	} else if p.FacilityID != "" {
		f := p.FacilityID
		a.FacilityID = &f
	}

	switch p.Role {
	case RoleClinician:
		a.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
		if a.LicenseNumber == "" {
			return Actor{}, fmt.Errorf("%w: license_number required", apperr.ErrInvalidInput)
		}
	case RolePatient:
		// Pacientes quedan verificados; clínicos esperan validación de un admin.
		a.Verified = true
	}

	var err error
	for i := 0; i < codeAttempts; i++ {
		if p.Role == RolePatient {
			if a.PatientCode, err = s.newCode(); err != nil {
				return Actor{}, err
			}
		}
		err = s.repo.Create(ctx, a)
		if err == nil || p.Role != RolePatient || !errors.Is(err, apperr.ErrConflict) {
			break
		}
		// Conflicto: puede ser el id (perfil ya existe) o el código.
		if _, gErr := s.repo.GetByID(ctx, a.ID); gErr == nil {
			break
		}
	}
	if err != nil {
		return Actor{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:   a.ID,
		ActorRole: string(a.Role),
		Action:    audit.ActionProfileRegistered,
	})
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Actor{}, apperr.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) FindByPatientCode(ctx context.Context, code string) (Actor, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Actor{}, apperr.ErrNotFound
	}
	a, err := s.repo.GetByPatientCode(ctx, code)
	if err != nil {
		return Actor{}, err
	}
	if a.Role != RolePatient || !a.Active {
		return Actor{}, apperr.ErrNotFound
	}
	return a, nil
}

func (s *Service) FindClinicianByIdentity(ctx context.Context, ident ClinicianIdentity) (Actor, error) {
	if !ident.Valid() {
		return Actor{}, fmt.Errorf("%w: first_name, last_name and license_number required", apperr.ErrInvalidInput)
	}
	a, err := s.repo.FindClinician(ctx, ident.Normalize())
	if err != nil {
		return Actor{}, err
	}
	return a, nil
}

// Resolve completa los claims con el perfil guardado: rol vigente, facility y
// revocación. Sin perfil, los claims pasan tal cual. Si el store falla tras
// los reintentos no devuelve claims: el rol del token no alcanza.
func (s *Service) Resolve(ctx context.Context, c auth.Claims) (auth.Claims, error) {
	id := strings.TrimSpace(c.UserID)
	a, err := retry.Value(ctx, s.retry, func(ctx context.Context) (Actor, error) {
		return s.repo.GetByID(ctx, id)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return auth.Claims{}, err
	}
	p := a.Principal()
	c.Role = string(p.Role)
	c.FacilityID = p.FacilityID
	return c, nil
}

// ReissuePatientCode reemplaza el código; el anterior deja de servir al instante.
func (s *Service) ReissuePatientCode(ctx context.Context, p Principal) (Actor, error) {
	if p.Role != RolePatient {
		return Actor{}, apperr.ErrUnauthorized
	}
	a, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return Actor{}, err
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return Actor{}, err
		}
		if code == a.PatientCode {
			continue
		}
		next := a
		next.PatientCode = code
		next.UpdatedAt = s.now().UTC()

		err = s.repo.Update(ctx, next)
		if errors.Is(err, apperr.ErrConflict) {
			continue
		}
		if err != nil {
			return Actor{}, err
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:   p.ID,
			ActorRole: string(p.Role),
			Action:    audit.ActionPatientCodeReissued,
		})
		return next, nil
	}
	return Actor{}, fmt.Errorf("%w: could not allocate a unique patient code", apperr.ErrConflict)
}

// Promote convierte un clínico en FACILITY_ADMIN de facilityID, pendiente de validación.
func (s *Service) Promote(ctx context.Context, p Principal, clinicianID, facilityID string) (Actor, error) {
	if p.Role != RoleSuperAdmin {
		return Actor{}, apperr.ErrUnauthorized
	}
	facilityID = strings.TrimSpace(facilityID)
	if facilityID == "" {
		return Actor{}, fmt.Errorf("%w: facility_id required", apperr.ErrInvalidInput)
	}

	a, err := s.Get(ctx, clinicianID)
	if err != nil {
		return Actor{}, err
	}
	if a.Role != RoleClinician || !a.Active {
		return Actor{}, fmt.Errorf("%w: only active clinicians can be promoted", apperr.ErrInvalidState)
	}

	a.Role = RoleFacilityAdmin
	a.Verified = false
	a.FacilityID = &facilityID
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return Actor{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionActorPromoted,
		TargetActorID: a.ID,
		Metadata:      map[string]string{"facility_id": facilityID},
	})
	return a, nil
}

// canManage: SUPER_ADMIN gestiona clínicos y admins de facility;
// FACILITY_ADMIN solo clínicos de su propia facility.
func canManage(p Principal, target Actor) bool {
	switch p.Role {
	case RoleSuperAdmin:
		return target.Role == RoleClinician || target.Role == RoleFacilityAdmin
	case RoleFacilityAdmin:
		return target.Role == RoleClinician &&
			p.FacilityID != "" &&
			target.FacilityID != nil && *target.FacilityID == p.FacilityID
	default:
		return false
	}
}

func (s *Service) Validate(ctx context.Context, p Principal, actorID string) (Actor, error) {
	if !p.Role.IsAdmin() {
		return Actor{}, apperr.ErrUnauthorized
	}
	a, err := s.Get(ctx, actorID)
	if err != nil {
		return Actor{}, err
	}
	if !canManage(p, a) {
		return Actor{}, apperr.ErrUnauthorized
	}
	if a.Verified {
		return a, nil
	}

	a.Verified = true
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return Actor{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionActorValidated,
		TargetActorID: a.ID,
	})
	return a, nil
}

// Revoke nunca borra: rol REVOKED, inactivo y sin punteros de creador en records.
// Los grants históricos se conservan.
func (s *Service) Revoke(ctx context.Context, p Principal, actorID string) (Actor, error) {
	if !p.Role.IsAdmin() {
		return Actor{}, apperr.ErrUnauthorized
	}
	a, err := s.Get(ctx, actorID)
	if err != nil {
		return Actor{}, err
	}
	if a.Role == RoleRevoked {
		return Actor{}, fmt.Errorf("%w: actor already revoked", apperr.ErrInvalidState)
	}
	if !canManage(p, a) {
		return Actor{}, apperr.ErrUnauthorized
	}

	now := s.now().UTC()
	note := notifications.NewMessage(notifications.EventActorRevoked, a.ID, map[string]string{
		"name":  a.FullName(),
		"email": a.Email,
	}, now)

	revoked, err := s.repo.Revoke(ctx, a.ID, now, note)
	if err != nil {
		return Actor{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionActorRevoked,
		TargetActorID: a.ID,
		Metadata:      map[string]string{"previous_role": string(a.Role)},
	})
	return revoked, nil
}
