package postgres

import (
	"context"
	"database/sql"
	"strings"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
)

type RecordsRepo struct {
	db *sql.DB
}

func NewRecordsRepo(db *sql.DB) *RecordsRepo {
	return &RecordsRepo{db: db}
}

const recordColumns = `
	id, number, patient_id, creator_id,
	title, content, active,
	created_at, updated_at`

func scanRecord(row rowScanner) (records.Record, error) {
	var (
		rec     records.Record
		creator sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Number,
		&rec.PatientID,
		&creator,
		&rec.Title,
		&rec.Content,
		&rec.Active,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return records.Record{}, classify(err)
	}
	rec.CreatorID = fromNullStringPtr(creator)
	return rec, nil
}

func (r *RecordsRepo) Create(ctx context.Context, rec records.Record, notes ...notifications.Message) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (`+recordColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			rec.ID,
			rec.Number,
			rec.PatientID,
			toNullStringPtr(rec.CreatorID),
			rec.Title,
			rec.Content,
			rec.Active,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
		if err != nil {
			return classify(err)
		}
		return enqueue(ctx, tx, notes)
	})
}

// Update no toca patient_id, number ni created_at.
func (r *RecordsRepo) Update(ctx context.Context, rec records.Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE records
		SET
			creator_id = $2,
			title = $3,
			content = $4,
			active = $5,
			updated_at = $6
		WHERE id = $1
	`,
		rec.ID,
		toNullStringPtr(rec.CreatorID),
		rec.Title,
		rec.Content,
		rec.Active,
		rec.UpdatedAt,
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

func (r *RecordsRepo) GetByID(ctx context.Context, id string) (records.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return records.Record{}, apperr.ErrNotFound
	}
	return scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id))
}

func (r *RecordsRepo) CountByPatient(ctx context.Context, patientID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM records WHERE patient_id = $1`, patientID).Scan(&n)
	return n, classify(err)
}

func (r *RecordsRepo) ListByPatient(ctx context.Context, patientID string) ([]records.Record, error) {
	return r.list(ctx, `WHERE patient_id = $1`, patientID)
}

func (r *RecordsRepo) ListByCreator(ctx context.Context, creatorID string) ([]records.Record, error) {
	return r.list(ctx, `WHERE creator_id = $1`, creatorID)
}

func (r *RecordsRepo) list(ctx context.Context, where string, arg string) ([]records.Record, error) {
	if strings.TrimSpace(arg) == "" {
		return []records.Record{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		`+where+`
		ORDER BY created_at ASC, number ASC
	`, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]records.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}
