package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
)

type ActorsRepo struct {
	db *sql.DB
}

func NewActorsRepo(db *sql.DB) *ActorsRepo {
	return &ActorsRepo{db: db}
}

const actorColumns = `
	id, role, facility_id, active, verified,
	first_name, last_name, license_number, email,
	patient_code, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (actors.Actor, error) {
	var (
		a        actors.Actor
		role     string
		facility sql.NullString
		code     sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&role,
		&facility,
		&a.Active,
		&a.Verified,
		&a.FirstName,
		&a.LastName,
		&a.LicenseNumber,
		&a.Email,
		&code,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return actors.Actor{}, classify(err)
	}
	a.Role = actors.Role(role)
	a.FacilityID = fromNullStringPtr(facility)
	a.PatientCode = code.String
	return a, nil
}

func (r *ActorsRepo) Create(ctx context.Context, a actors.Actor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO actors (`+actorColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		a.ID,
		string(a.Role),
		toNullStringPtr(a.FacilityID),
		a.Active,
		a.Verified,
		a.FirstName,
		a.LastName,
		a.LicenseNumber,
		a.Email,
		toNullString(a.PatientCode),
		a.CreatedAt,
		a.UpdatedAt,
	)
	return classify(err)
}

// Update reemplaza la fila completa; el código anterior deja de resolver
// porque patient_code es una sola columna.
func (r *ActorsRepo) Update(ctx context.Context, a actors.Actor) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE actors
		SET
			role = $2,
			facility_id = $3,
			active = $4,
			verified = $5,
			first_name = $6,
			last_name = $7,
			license_number = $8,
			email = $9,
			patient_code = $10,
			updated_at = $11
		WHERE id = $1
	`,
		a.ID,
		string(a.Role),
		toNullStringPtr(a.FacilityID),
		a.Active,
		a.Verified,
		a.FirstName,
		a.LastName,
		a.LicenseNumber,
		a.Email,
		toNullString(a.PatientCode),
		a.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *ActorsRepo) GetByID(ctx context.Context, id string) (actors.Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return actors.Actor{}, apperr.ErrNotFound
	}
	return scanActor(r.db.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, id))
}

func (r *ActorsRepo) GetByPatientCode(ctx context.Context, code string) (actors.Actor, error) {
	if code == "" {
		return actors.Actor{}, apperr.ErrNotFound
	}
	return scanActor(r.db.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE patient_code = $1`, code))
}

func (r *ActorsRepo) FindClinician(ctx context.Context, ident actors.ClinicianIdentity) (actors.Actor, error) {
	return scanActor(r.db.QueryRowContext(ctx, `
		SELECT `+actorColumns+`
		FROM actors
		WHERE license_number <> ''
		  AND license_number = $1
		  AND lower(first_name) = lower($2)
		  AND lower(last_name) = lower($3)
		ORDER BY id
		LIMIT 1
	`, ident.LicenseNumber, ident.FirstName, ident.LastName))
}

func (r *ActorsRepo) Revoke(ctx context.Context, id string, at time.Time, notes ...notifications.Message) (actors.Actor, error) {
	var out actors.Actor
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		a, err := scanActor(tx.QueryRowContext(ctx, `
			UPDATE actors
			SET role = $2, active = FALSE, updated_at = $3
			WHERE id = $1
			RETURNING `+actorColumns,
			id, string(actors.RoleRevoked), at,
		))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET creator_id = NULL, updated_at = $2 WHERE creator_id = $1
		`, id, at); err != nil {
			return classify(err)
		}

		if err := enqueue(ctx, tx, notes); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}
