package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/requests"

	"github.com/google/uuid"
)

type RequestsRepo struct {
	db *DB
}

func NewRequestsRepo(db *DB) *RequestsRepo {
	return &RequestsRepo{db: db}
}

func cloneRequest(r requests.Request) requests.Request {
	if r.RespondedAt != nil {
		t := *r.RespondedAt
		r.RespondedAt = &t
	}
	return r
}

func (r *RequestsRepo) Create(ctx context.Context, req requests.Request, notes ...notifications.Message) error {
	if req.ID == "" {
		return errors.New("request id required")
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.requests[req.ID]; exists {
		return apperr.ErrConflict
	}
	// Índice único parcial: un solo PENDING por (clínico, paciente).
	key := pairKey{clinicianID: req.ClinicianID, patientID: req.PatientID}
	if req.Status == requests.StatePending {
		if _, pending := r.db.pendingByPair[key]; pending {
			return apperr.ErrAlreadyPending
		}
		r.db.pendingByPair[key] = req.ID
	}
	r.db.requests[req.ID] = cloneRequest(req)
	r.db.enqueueLocked(notes)
	return nil
}

func (r *RequestsRepo) GetByID(ctx context.Context, id string) (requests.Request, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	req, ok := r.db.requests[id]
	if !ok {
		return requests.Request{}, apperr.ErrNotFound
	}
	return cloneRequest(req), nil
}

// Resolve: CAS + fan-out + outbox dentro del mismo lock; o todo o nada.
func (r *RequestsRepo) Resolve(ctx context.Context, res requests.Resolution) (requests.Request, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	req, ok := r.db.requests[res.RequestID]
	if !ok || req.PatientID != res.PatientID {
		return requests.Request{}, 0, apperr.ErrNotFound
	}
	if !requests.CanTransition(req.Status, res.Decision) {
		return requests.Request{}, 0, fmt.Errorf("%w: request is %s", apperr.ErrInvalidState, req.Status)
	}

	created := 0
	if res.Decision == requests.StateAccepted {
		// Validar antes de insertar: dentro del loop solo puede haber conflictos.
		if _, ok := r.db.actors[req.ClinicianID]; !ok {
			return requests.Request{}, 0, apperr.ErrNotFound
		}
		for _, rec := range r.db.records {
			if rec.PatientID != req.PatientID {
				continue
			}
			err := r.db.insertGrantLocked(grants.Grant{
				ID:           uuid.NewString(),
				RecordID:     rec.ID,
				ClinicianID:  req.ClinicianID,
				AuthorizedBy: req.PatientID,
				CreatedAt:    res.At,
			})
			switch {
			case err == nil:
				created++
			case errors.Is(err, apperr.ErrConflict):
				// ON CONFLICT DO NOTHING
			default:
				return requests.Request{}, 0, err
			}
		}
	}

	at := res.At
	req.Status = res.Decision
	req.RespondedAt = &at
	r.db.requests[req.ID] = req
	delete(r.db.pendingByPair, pairKey{clinicianID: req.ClinicianID, patientID: req.PatientID})

	r.db.enqueueLocked(res.Notes)
	return cloneRequest(req), created, nil
}

func (r *RequestsRepo) ListByPatient(ctx context.Context, patientID string, status requests.State) ([]requests.Request, error) {
	return r.list(func(req requests.Request) bool {
		return req.PatientID == patientID && (status == "" || req.Status == status)
	}), nil
}

func (r *RequestsRepo) ListByClinician(ctx context.Context, clinicianID string, status requests.State) ([]requests.Request, error) {
	return r.list(func(req requests.Request) bool {
		return req.ClinicianID == clinicianID && (status == "" || req.Status == status)
	}), nil
}

func (r *RequestsRepo) list(keep func(requests.Request) bool) []requests.Request {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]requests.Request, 0)
	for _, req := range r.db.requests {
		if keep(req) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
