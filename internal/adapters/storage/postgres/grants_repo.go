package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
)

type GrantsRepo struct {
	db *sql.DB
}

func NewGrantsRepo(db *sql.DB) *GrantsRepo {
	return &GrantsRepo{db: db}
}

const grantColumns = `id, record_id, clinician_id, authorized_by, created_at`

func scanGrant(row rowScanner) (grants.Grant, error) {
	var g grants.Grant
	if err := row.Scan(&g.ID, &g.RecordID, &g.ClinicianID, &g.AuthorizedBy, &g.CreatedAt); err != nil {
		return grants.Grant{}, classify(err)
	}
	return g, nil
}

// Create depende de UNIQUE(record_id, clinician_id): el perdedor de una
// carrera recibe ErrConflict.
func (r *GrantsRepo) Create(ctx context.Context, g grants.Grant, notes ...notifications.Message) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_grants (`+grantColumns+`)
			VALUES ($1,$2,$3,$4,$5)
		`, g.ID, g.RecordID, g.ClinicianID, g.AuthorizedBy, g.CreatedAt)
		if err != nil {
			return classify(err)
		}
		return enqueue(ctx, tx, notes)
	})
}

func (r *GrantsRepo) List(ctx context.Context, f grants.Filter) ([]grants.Grant, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("record_id", f.RecordID)
	add("clinician_id", f.ClinicianID)
	add("authorized_by", f.AuthorizedBy)

	q := `SELECT ` + grantColumns + ` FROM access_grants`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]grants.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, classify(rows.Err())
}

func (r *GrantsRepo) Exists(ctx context.Context, recordID, clinicianID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM access_grants WHERE record_id = $1 AND clinician_id = $2)
	`, recordID, clinicianID).Scan(&ok)
	return ok, classify(err)
}

func (r *GrantsRepo) DeleteByAuthorizer(ctx context.Context, clinicianID, authorizedBy string, notes ...notifications.Message) (int, error) {
	var n int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM access_grants WHERE clinician_id = $1 AND authorized_by = $2
		`, clinicianID, authorizedBy)
		if err != nil {
			return classify(err)
		}
		affected, _ := res.RowsAffected()
		n = int(affected)
		if n == 0 {
			return nil
		}
		return enqueue(ctx, tx, notes)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
