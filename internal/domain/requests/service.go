package requests

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/retry"

	"github.com/google/uuid"
)

type Service struct {
	repo   Repository
	actors *actors.Service
	grants *grants.Service
	audit  *audit.Recorder
	retry  retry.Policy
	now    func() time.Time
}

func NewService(repo Repository, actorsSvc *actors.Service, grantsSvc *grants.Service, rec *audit.Recorder) *Service {
	return &Service{
		repo:   repo,
		actors: actorsSvc,
		grants: grantsSvc,
		audit:  rec,
		retry:  retry.Default(),
		now:    time.Now,
	}
}

// File: NONE -> PENDING. El "uno pendiente por par" lo garantiza el store.
func (s *Service) File(ctx context.Context, p actors.Principal, patientCode string) (Request, error) {
	if p.Role != actors.RoleClinician {
		return Request{}, apperr.ErrUnauthorized
	}
	clinician, err := s.actors.Get(ctx, p.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Request{}, fmt.Errorf("%w: clinician profile required", apperr.ErrUnauthorized)
	}
	if err != nil {
		return Request{}, err
	}

	patient, err := s.actors.FindByPatientCode(ctx, patientCode)
	if err != nil {
		return Request{}, err
	}
	now := s.now().UTC()
	req := Request{
		ID:          uuid.NewString(),
		ClinicianID: clinician.ID,
		PatientID:   patient.ID,
		Status:      StatePending,
		CreatedAt:   now,
	}
	note := notifications.NewMessage(notifications.EventAccessRequested, patient.ID, map[string]string{
		"clinician_name":    clinician.FullName(),
		"clinician_license": clinician.LicenseNumber,
	}, now)

	if err := s.repo.Create(ctx, req, note); err != nil {
		return Request{}, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionRequestFiled,
		TargetActorID: patient.ID,
		Metadata:      map[string]string{"request_id": req.ID},
	})
	return req, nil
}

// Respond: PENDING -> ACCEPTED|REJECTED exactamente una vez. El CAS y el
// fan-out de grants van en una sola transacción del store.
func (s *Service) Respond(ctx context.Context, p actors.Principal, requestID, decision string) (Request, int, error) {
	if p.Role != actors.RolePatient {
		return Request{}, 0, apperr.ErrUnauthorized
	}

	req, err := retry.Value(ctx, s.retry, func(ctx context.Context) (Request, error) {
		return s.repo.GetByID(ctx, strings.TrimSpace(requestID))
	})
	if err != nil {
		return Request{}, 0, err
	}
	// Un request ajeno no existe para este paciente.
	if req.PatientID != p.ID {
		return Request{}, 0, apperr.ErrNotFound
	}
	to, err := ParseDecision(decision)
	if err != nil {
		return Request{}, 0, err
	}
	if !CanTransition(StateOf(&req), to) {
		return Request{}, 0, fmt.Errorf("%w: request is %s", apperr.ErrInvalidState, req.Status)
	}

	now := s.now().UTC()
	evt := notifications.EventRequestRejected
	if to == StateAccepted {
		evt = notifications.EventRequestAccepted
	}
	data := map[string]string{"request_id": req.ID}
	if patient, err := s.actors.Get(ctx, p.ID); err == nil {
		data["patient_name"] = patient.FullName()
	}

	res := Resolution{
		RequestID: req.ID,
		PatientID: p.ID,
		Decision:  to,
		At:        now,
		Notes:     []notifications.Message{notifications.NewMessage(evt, req.ClinicianID, data, now)},
	}
	// El CAS es todo o nada: reintentarlo entero es seguro.
	var (
		updated Request
		created int
	)
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, created, err = s.repo.Resolve(ctx, res)
		return err
	})
	if err != nil {
		return Request{}, 0, err
	}

	e := audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionRequestRejected,
		TargetActorID: req.ClinicianID,
		Metadata:      map[string]string{"request_id": req.ID},
	}
	if to == StateAccepted {
		e.Action = audit.ActionRequestAccepted
		e.Metadata["grants_created"] = strconv.Itoa(created)
	}
	s.audit.Record(ctx, e)

	return updated, created, nil
}

// Revoke borra solo los grants que este paciente otorgó al clínico.
// Cero grants no es error.
func (s *Service) Revoke(ctx context.Context, p actors.Principal, ident actors.ClinicianIdentity) (int, error) {
	if p.Role != actors.RolePatient {
		return 0, apperr.ErrUnauthorized
	}
	clinician, err := s.actors.FindClinicianByIdentity(ctx, ident)
	if err != nil {
		return 0, err
	}

	data := map[string]string{}
	if patient, err := s.actors.Get(ctx, p.ID); err == nil {
		data["patient_name"] = patient.FullName()
	}
	note := notifications.NewMessage(notifications.EventAccessRevoked, clinician.ID, data, s.now().UTC())

	n, err := s.grants.RevokeGrants(ctx, clinician.ID, p.ID, note)
	if err != nil {
		return 0, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		Action:        audit.ActionGrantsRevoked,
		TargetActorID: clinician.ID,
		Metadata:      map[string]string{"count": strconv.Itoa(n)},
	})
	return n, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID string, status State) ([]Request, error) {
	return retry.Value(ctx, s.retry, func(ctx context.Context) ([]Request, error) {
		return s.repo.ListByPatient(ctx, patientID, status)
	})
}

func (s *Service) ListForClinician(ctx context.Context, clinicianID string, status State) ([]Request, error) {
	return retry.Value(ctx, s.retry, func(ctx context.Context) ([]Request, error) {
		return s.repo.ListByClinician(ctx, clinicianID, status)
	})
}

// ListMine: bandeja del paciente o pedidos enviados del clínico.
func (s *Service) ListMine(ctx context.Context, p actors.Principal, status State) ([]Request, error) {
	switch p.Role {
	case actors.RolePatient:
		return s.ListForPatient(ctx, p.ID, status)
	case actors.RoleClinician:
		return s.ListForClinician(ctx, p.ID, status)
	default:
		return nil, apperr.ErrUnauthorized
	}
}
