package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/requests"
)

type RequestsRepo struct {
	db *sql.DB
}

func NewRequestsRepo(db *sql.DB) *RequestsRepo {
	return &RequestsRepo{db: db}
}

const requestColumns = `id, clinician_id, patient_id, status, created_at, responded_at`

func scanRequest(row rowScanner) (requests.Request, error) {
	var (
		req         requests.Request
		status      string
		respondedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.ClinicianID, &req.PatientID, &status, &req.CreatedAt, &respondedAt); err != nil {
		return requests.Request{}, classify(err)
	}
	req.Status = requests.State(status)
	req.RespondedAt = fromNullTime(respondedAt)
	return req, nil
}

// Create: el índice único parcial access_requests_one_pending hace que el
// segundo PENDING del par falle con ErrAlreadyPending.
func (r *RequestsRepo) Create(ctx context.Context, req requests.Request, notes ...notifications.Message) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_requests (`+requestColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, req.ID, req.ClinicianID, req.PatientID, string(req.Status), req.CreatedAt, toNullTime(req.RespondedAt))
		if err != nil {
			return classify(err)
		}
		return enqueue(ctx, tx, notes)
	})
}

func (r *RequestsRepo) GetByID(ctx context.Context, id string) (requests.Request, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return requests.Request{}, apperr.ErrNotFound
	}
	return scanRequest(r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM access_requests WHERE id = $1`, id))
}

// Resolve: el UPDATE condicionado a status = 'PENDING' es el CAS. Fan-out y
// outbox van en la misma transacción.
func (r *RequestsRepo) Resolve(ctx context.Context, res requests.Resolution) (requests.Request, int, error) {
	var (
		out     requests.Request
		created int
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		req, err := scanRequest(tx.QueryRowContext(ctx, `
			UPDATE access_requests
			SET status = $3, responded_at = $4
			WHERE id = $1 AND patient_id = $2 AND status = 'PENDING'
			RETURNING `+requestColumns,
			res.RequestID, res.PatientID, string(res.Decision), res.At,
		))
		if errors.Is(err, apperr.ErrNotFound) {
			return r.explainMiss(ctx, tx, res)
		}
		if err != nil {
			return err
		}

		if res.Decision == requests.StateAccepted {
			result, err := tx.ExecContext(ctx, `
				INSERT INTO access_grants (id, record_id, clinician_id, authorized_by, created_at)
				SELECT gen_random_uuid()::text, rec.id, $2, $1, $3
				FROM records rec
				WHERE rec.patient_id = $1
				ON CONFLICT (record_id, clinician_id) DO NOTHING
			`, req.PatientID, req.ClinicianID, res.At)
			if err != nil {
				return classify(err)
			}
			n, _ := result.RowsAffected()
			created = int(n)
		}

		if err := enqueue(ctx, tx, res.Notes); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return requests.Request{}, 0, err
	}
	return out, created, nil
}

// explainMiss distingue "no existe para este paciente" de "ya no está PENDING".
func (r *RequestsRepo) explainMiss(ctx context.Context, tx *sql.Tx, res requests.Resolution) error {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM access_requests WHERE id = $1 AND patient_id = $2
	`, res.RequestID, res.PatientID).Scan(&status)
	if err != nil {
		return classify(err)
	}
	return fmt.Errorf("%w: request is %s", apperr.ErrInvalidState, status)
}

func (r *RequestsRepo) ListByPatient(ctx context.Context, patientID string, status requests.State) ([]requests.Request, error) {
	return r.list(ctx, "patient_id", patientID, status)
}

func (r *RequestsRepo) ListByClinician(ctx context.Context, clinicianID string, status requests.State) ([]requests.Request, error) {
	return r.list(ctx, "clinician_id", clinicianID, status)
}

func (r *RequestsRepo) list(ctx context.Context, col, id string, status requests.State) ([]requests.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM access_requests WHERE ` + col + ` = $1`
	args := []any{id}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]requests.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, classify(rows.Err())
}
