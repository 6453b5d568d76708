package memory

import (
	"context"
	"errors"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
)

type RecordsRepo struct {
	db *DB
}

func NewRecordsRepo(db *DB) *RecordsRepo {
	return &RecordsRepo{db: db}
}

func numberKey(patientID, number string) string {
	return patientID + "|" + number
}

func cloneRecord(rec records.Record) records.Record {
	rec.CreatorID = strPtrCopy(rec.CreatorID)
	return rec
}

func (r *RecordsRepo) Create(ctx context.Context, rec records.Record, notes ...notifications.Message) error {
	if rec.ID == "" {
		return errors.New("record id required")
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.records[rec.ID]; exists {
		return apperr.ErrConflict
	}
	if _, ok := r.db.actors[rec.PatientID]; !ok {
		return apperr.ErrNotFound
	}
	key := numberKey(rec.PatientID, rec.Number)
	if _, taken := r.db.recordNumber[key]; taken {
		return apperr.ErrConflict
	}

	r.db.records[rec.ID] = cloneRecord(rec)
	r.db.recordNumber[key] = rec.ID
	r.db.enqueueLocked(notes)
	return nil
}

// Update no permite cambiar el paciente dueño ni la numeración.
func (r *RecordsRepo) Update(ctx context.Context, rec records.Record) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.records[rec.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	rec.PatientID = current.PatientID
	rec.Number = current.Number
	rec.CreatedAt = current.CreatedAt
	r.db.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *RecordsRepo) GetByID(ctx context.Context, id string) (records.Record, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rec, ok := r.db.records[id]
	if !ok {
		return records.Record{}, apperr.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *RecordsRepo) CountByPatient(ctx context.Context, patientID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	n := 0
	for _, rec := range r.db.records {
		if rec.PatientID == patientID {
			n++
		}
	}
	return n, nil
}

func (r *RecordsRepo) ListByPatient(ctx context.Context, patientID string) ([]records.Record, error) {
	return r.list(func(rec records.Record) bool { return rec.PatientID == patientID }), nil
}

func (r *RecordsRepo) ListByCreator(ctx context.Context, creatorID string) ([]records.Record, error) {
	return r.list(func(rec records.Record) bool { return rec.CreatedBy(creatorID) }), nil
}

func (r *RecordsRepo) list(keep func(records.Record) bool) []records.Record {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]records.Record, 0)
	for _, rec := range r.db.records {
		if keep(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sortRecords(out)
	return out
}
